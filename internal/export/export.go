// Package export writes mail bundles to an export directory, one file
// per mail, named after the mail id so that later queries can tell
// which mails are already on disk.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"deskbridge/internal/protocol"
)

const idDelimiter = "__"

// MailIDToFileName returns "list__element.ext", or "list__element" when
// ext is empty.  ext is given without the leading dot.
func MailIDToFileName(id protocol.IDTuple, ext string) string {
	name := id[0] + idDelimiter + id[1]
	if ext != "" {
		name += "." + ext
	}
	return name
}

// FileNameToMailID inverts [MailIDToFileName].
func FileNameToMailID(name string) (protocol.IDTuple, error) {
	if name == "" {
		return protocol.IDTuple{}, fmt.Errorf("cannot extract mail id from empty file name")
	}
	base, _, _ := strings.Cut(name, ".")
	parts := strings.Split(base, idDelimiter)
	if len(parts) != 2 {
		return protocol.IDTuple{}, fmt.Errorf("invalid mail id file name %q", name)
	}
	return protocol.IDTuple{parts[0], parts[1]}, nil
}

// DefaultDir is the export directory used when none is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "deskbridge", "msg_export")
}

// Encoder serializes one bundle into the export file format.
type Encoder interface {
	// Extension is the file extension without the leading dot.
	Extension() string
	Encode(w io.Writer, b protocol.MailBundle) error
}

// JSONEncoder writes bundles as indented JSON.
type JSONEncoder struct{}

func (JSONEncoder) Extension() string { return "json" }

func (JSONEncoder) Encode(w io.Writer, b protocol.MailBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Exporter owns one export directory.
type Exporter struct {
	dir string
	enc Encoder
}

// New creates the export directory if needed.  A nil encoder selects
// [JSONEncoder].
func New(dir string, enc Encoder) (*Exporter, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if enc == nil {
		enc = JSONEncoder{}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	return &Exporter{dir: dir, enc: enc}, nil
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// path is where the mail with id lives.  Both id parts must be
// non-empty and free of path separators; the joined name is legalized
// the same way for writing and for lookups.
func (e *Exporter) path(id protocol.IDTuple) (string, error) {
	for _, part := range id {
		if part == "" || strings.ContainsAny(part, "/\\\x00") {
			return "", fmt.Errorf("invalid mail id %q", id[:])
		}
	}
	return filepath.Join(e.dir, LegalizeFilename(MailIDToFileName(id, e.enc.Extension()))), nil
}

// Exists reports whether the mail has already been exported.
func (e *Exporter) Exists(id protocol.IDTuple) bool {
	p, err := e.path(id)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Write exports every bundle.  A mail repeated in the batch is written
// once, with its last bundle.  A bundle that fails, or whose legalized
// name is already taken by another mail of the batch, does not stop the
// others; all failures are returned together.
func (e *Exporter) Write(ctx context.Context, bundles []protocol.MailBundle) error {
	var errs error
	owner := make(map[string]protocol.IDTuple, len(bundles))
	for _, b := range bundles {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		p, err := e.path(b.MailID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		name := strings.ToLower(filepath.Base(p))
		if prev, ok := owner[name]; ok && prev != b.MailID {
			errs = multierr.Append(errs, fmt.Errorf("mail %q: file %s already holds mail %q", b.MailID[:], filepath.Base(p), prev[:]))
			continue
		}
		owner[name] = b.MailID

		var buf bytes.Buffer
		if err := e.enc.Encode(&buf, b); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("encoding %s: %w", filepath.Base(p), err))
			continue
		}
		if err := os.WriteFile(p, buf.Bytes(), 0o600); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("writing %s: %w", filepath.Base(p), err))
		}
	}
	return errs
}

// Paths returns the files of the given mails that exist on disk, in
// the order of ids.
func (e *Exporter) Paths(ids []protocol.IDTuple) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if e.Exists(id) {
			p, _ := e.path(id)
			out = append(out, p)
		}
	}
	return out
}
