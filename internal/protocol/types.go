package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// IDTuple is a (list id, element id) pair identifying a mail.
type IDTuple [2]string

// FindOptions mirrors the options of an in-page search.
type FindOptions struct {
	Forward   bool `json:"forward"`
	MatchCase bool `json:"matchCase"`
	FindNext  bool `json:"findNext"`
}

// FindResult reports the matches of an in-page search.
type FindResult struct {
	NumberOfMatches int `json:"numberOfMatches"`
	CurrentMatch    int `json:"currentMatch"`
}

// DownloadResult describes a finished native download.
type DownloadResult struct {
	StatusCode       int    `json:"statusCode"`
	StatusMessage    string `json:"statusMessage"`
	EncryptedFileURI string `json:"encryptedFileUri,omitempty"`
}

// UserInfo binds a logged-in user to a window.
type UserInfo struct {
	UserID      string `json:"userId"`
	MailAddress string `json:"mailAddress"`
}

// UpdateInfo describes an available application update.
type UpdateInfo struct {
	Version     string `json:"version"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	Notes       string `json:"releaseNotes,omitempty"`
}

// MailAddress is a display name and address pair.
type MailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ByteArray decodes binary payloads that arrive either as a base64
// string or as a plain array of byte values.  It always encodes as
// base64.
type ByteArray []byte

func (b *ByteArray) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		*b = raw
		return nil
	default:
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return fmt.Errorf("byte array: value %d at %d out of range", n, i)
			}
			out[i] = byte(n)
		}
		*b = out
		return nil
	}
}

func (b ByteArray) MarshalJSON() ([]byte, error) {
	return json.Marshal([]byte(b))
}

// Attachment is one file carried inside a MailBundle.
type Attachment struct {
	Name     string    `json:"name"`
	CID      string    `json:"cid,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Data     ByteArray `json:"data"`
}

// MailBundle is everything needed to export a mail to a file.
type MailBundle struct {
	MailID      IDTuple       `json:"mailId"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	Sender      MailAddress   `json:"sender"`
	To          []MailAddress `json:"to"`
	Cc          []MailAddress `json:"cc"`
	Bcc         []MailAddress `json:"bcc"`
	ReplyTo     []MailAddress `json:"replyTo"`
	IsDraft     bool          `json:"isDraft"`
	IsRead      bool          `json:"isRead"`
	SentOn      int64         `json:"sentOn"`
	ReceivedOn  int64         `json:"receivedOn"`
	Headers     string        `json:"headers,omitempty"`
	Attachments []Attachment  `json:"attachments"`
}

// Mail is an opaque mail entity.  Only its id is interpreted; the rest
// is passed back to the renderer untouched.
type Mail struct {
	ID  IDTuple
	raw json.RawMessage
}

func (m *Mail) UnmarshalJSON(data []byte) error {
	var head struct {
		ID IDTuple `json:"_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	m.ID = head.ID
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Mail) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(struct {
		ID IDTuple `json:"_id"`
	}{m.ID})
}
