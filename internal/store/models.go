package store

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind separates real assistant output from notices the client synthesizes.
type Kind string

const (
	KindReply Kind = "reply"
	KindError Kind = "error"
)

// ErrorNoticePrefix marks assistant messages that carry a failed send.
const ErrorNoticePrefix = "Error: "

type Session struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	CreatedAt *Timestamp `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

type Message struct {
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	Kind      Kind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// IsErrorNotice reports whether the message was produced by a failed send.
func (m Message) IsErrorNotice() bool {
	return m.Kind == KindError
}

type UploadState string

const (
	UploadIdle      UploadState = "idle"
	UploadUploading UploadState = "uploading"
	UploadSuccess   UploadState = "success"
	UploadFailure   UploadState = "failure"
)

type UploadStatus struct {
	State   UploadState `json:"state"`
	Message string      `json:"message,omitempty"`
}

// Terminal reports whether the status is a success or failure that will revert to idle.
func (s UploadStatus) Terminal() bool {
	return s.State == UploadSuccess || s.State == UploadFailure
}

// Timestamp decodes the timestamps the backend emits. Naive ISO-8601 values
// (no zone, as produced by Python's isoformat) are read as UTC.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(time.RFC3339), nil
}
