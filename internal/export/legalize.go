package export

import (
	"path/filepath"
	"strings"
)

const maxNameLen = 255

var illegal = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_",
)

var reserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsReserved reports whether name is a device name on Windows, with or
// without an extension.
func IsReserved(name string) bool {
	base, _, _ := strings.Cut(name, ".")
	return reserved[strings.ToUpper(base)]
}

// LegalizeFilename makes name safe on every supported file system.
func LegalizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, illegal.Replace(name))
	name = strings.TrimRight(name, ". ")
	if name == "" {
		name = "_"
	}
	if IsReserved(name) {
		name = "_" + name
	}
	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxNameLen-len(ext)] + ext
	}
	return name
}
