package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SplitListen turns a listen spec into a network and address.  Specs
// of the form "unix:/path" select a Unix socket; anything else is a
// TCP host:port.
func SplitListen(spec string) (network, address string, err error) {
	if path, ok := strings.CutPrefix(spec, "unix:"); ok {
		if path == "" {
			return "", "", fmt.Errorf("empty unix socket path in %q", spec)
		}
		return "unix", path, nil
	}
	host, port, err := net.SplitHostPort(spec)
	if err != nil {
		return "", "", fmt.Errorf("parsing listen address %q: %w", spec, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", fmt.Errorf("invalid port %q in %q", port, spec)
	}
	return "tcp", net.JoinHostPort(host, port), nil
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
