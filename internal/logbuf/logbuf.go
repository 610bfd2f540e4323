// Package logbuf keeps the most recent log lines in memory so a
// renderer can fetch them with getLog.
package logbuf

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// DefaultSize is the number of lines kept when New is given zero.
const DefaultSize = 1000

// Buffer is a fixed-size ring of formatted lines.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// New returns a buffer holding up to size lines.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{lines: make([]string, size)}
}

// Append stores one line, evicting the oldest when full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	b.lines[b.next] = line
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
}

// Lines returns the stored lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	return append(out, b.lines[:b.next]...)
}

// Len returns the number of stored lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.lines)
	}
	return b.next
}

// ── zap core ─────────────────────────────────────────────────────────

// Core returns a zapcore.Core that records entries at or above level
// into b.  Lines look like "2006-01-02T15:04:05.000Z07:00 INFO name: msg k=v".
func (b *Buffer) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &core{LevelEnabler: level, buf: b}
}

type core struct {
	zapcore.LevelEnabler
	buf    *Buffer
	fields []zapcore.Field
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	return &core{
		LevelEnabler: c.LevelEnabler,
		buf:          c.buf,
		fields:       append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var sb strings.Builder
	sb.WriteString(ent.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	sb.WriteByte(' ')
	sb.WriteString(strings.ToUpper(levelName(ent.Level)))
	sb.WriteByte(' ')
	if ent.LoggerName != "" {
		sb.WriteString(ent.LoggerName)
		sb.WriteString(": ")
	}
	sb.WriteString(ent.Message)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	for _, k := range sortedKeys(enc.Fields) {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(formatValue(enc.Fields[k]))
	}
	c.buf.Append(sb.String())
	return nil
}

func (c *core) Sync() error { return nil }

// levelName names the levels below debug that util.Logger uses.
func levelName(l zapcore.Level) string {
	if l < zapcore.DebugLevel {
		return "debug"
	}
	if l == zapcore.DebugLevel {
		return "verbose"
	}
	return l.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		if strings.ContainsAny(v, " \t\"") {
			return fmt.Sprintf("%q", v)
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
