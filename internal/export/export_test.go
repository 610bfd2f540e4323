package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskbridge/internal/protocol"
)

func TestMailIDToFileName(t *testing.T) {
	id := protocol.IDTuple{"listId", "elementId"}
	assert.Equal(t, "listId__elementId.msg", MailIDToFileName(id, "msg"))
	assert.Equal(t, "listId__elementId", MailIDToFileName(id, ""))
}

func TestFileNameToMailID(t *testing.T) {
	tests := []struct {
		name    string
		want    protocol.IDTuple
		wantErr bool
	}{
		{"listId__elementId.msg", protocol.IDTuple{"listId", "elementId"}, false},
		{"listId__elementId", protocol.IDTuple{"listId", "elementId"}, false},
		{"", protocol.IDTuple{}, true},
		{"noDelimiter.msg", protocol.IDTuple{}, true},
		{"a__b__c.msg", protocol.IDTuple{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FileNameToMailID(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileName_RoundTrip(t *testing.T) {
	id := protocol.IDTuple{"Lk2-x", "Mt9_q"}
	got, err := FileNameToMailID(MailIDToFileName(id, "json"))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func bundle(list, elem, subject string) protocol.MailBundle {
	return protocol.MailBundle{
		MailID:  protocol.IDTuple{list, elem},
		Subject: subject,
		Sender:  protocol.MailAddress{Name: "A", Address: "a@example.com"},
	}
}

func TestExporter_WriteExistsPaths(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "export"), nil)
	require.NoError(t, err)

	a := bundle("l1", "e1", "first")
	b := bundle("l1", "e2", "second")
	missing := protocol.IDTuple{"l1", "e3"}

	assert.False(t, e.Exists(a.MailID))
	require.NoError(t, e.Write(context.Background(), []protocol.MailBundle{a, b}))
	assert.True(t, e.Exists(a.MailID))
	assert.True(t, e.Exists(b.MailID))
	assert.False(t, e.Exists(missing))

	paths := e.Paths([]protocol.IDTuple{b.MailID, missing, a.MailID})
	assert.Equal(t, []string{
		filepath.Join(e.Dir(), "l1__e2.json"),
		filepath.Join(e.Dir(), "l1__e1.json"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	var got protocol.MailBundle
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "first", got.Subject)
}

type failingEncoder struct{}

func (failingEncoder) Extension() string { return "msg" }

func (failingEncoder) Encode(w io.Writer, b protocol.MailBundle) error {
	if b.Subject == "bad" {
		return fmt.Errorf("cannot encode")
	}
	_, err := io.WriteString(w, b.Subject)
	return err
}

func TestExporter_PartialFailure(t *testing.T) {
	e, err := New(t.TempDir(), failingEncoder{})
	require.NoError(t, err)

	err = e.Write(context.Background(), []protocol.MailBundle{
		bundle("l", "ok", "good"),
		bundle("l", "ko", "bad"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot encode")
	assert.True(t, e.Exists(protocol.IDTuple{"l", "ok"}))
	assert.False(t, e.Exists(protocol.IDTuple{"l", "ko"}))
}

func TestLegalizeFilename(t *testing.T) {
	tests := map[string]string{
		"plain.json":     "plain.json",
		"a/b\\c:d.json":  "a_b_c_d.json",
		"what?.json":     "what_.json",
		"trailing. . ":   "trailing",
		"CON":            "_CON",
		"lpt1.txt":       "_lpt1.txt",
		"":               "_",
		"tab\there.json": "tab_here.json",
	}
	for in, want := range tests {
		assert.Equal(t, want, LegalizeFilename(in), "input %q", in)
	}
}

func TestExporter_LegalizedIDsAreFound(t *testing.T) {
	e, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	id := protocol.IDTuple{"a:b", "c?"}
	require.NoError(t, e.Write(context.Background(), []protocol.MailBundle{bundle(id[0], id[1], "odd")}))

	assert.True(t, e.Exists(id))
	assert.Equal(t, []string{filepath.Join(e.Dir(), "a_b__c_.json")}, e.Paths([]protocol.IDTuple{id}))
}

func TestExporter_DuplicateInBatchWrittenOnce(t *testing.T) {
	e, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, e.Write(context.Background(), []protocol.MailBundle{
		bundle("l", "e", "old"),
		bundle("l", "e", "new"),
	}))

	entries, err := os.ReadDir(e.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(e.Dir(), "l__e.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"new"`)
}

func TestExporter_CollidingNames(t *testing.T) {
	e, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	err = e.Write(context.Background(), []protocol.MailBundle{
		bundle("a:b", "c", "first"),
		bundle("a_b", "c", "second"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds")
	assert.True(t, e.Exists(protocol.IDTuple{"a:b", "c"}))
}

func TestExporter_RejectsSeparators(t *testing.T) {
	root := t.TempDir()
	e, err := New(filepath.Join(root, "export"), nil)
	require.NoError(t, err)

	for _, id := range []protocol.IDTuple{
		{"..", "../escape"},
		{`..\x`, "y"},
		{"", "e"},
	} {
		err := e.Write(context.Background(), []protocol.MailBundle{bundle(id[0], id[1], "x")})
		assert.Error(t, err, "id %q", id[:])
		assert.False(t, e.Exists(id))
		assert.Empty(t, e.Paths([]protocol.IDTuple{id}))
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "nothing may be written outside the export dir")
	inner, err := os.ReadDir(e.Dir())
	require.NoError(t, err)
	assert.Empty(t, inner)
}
