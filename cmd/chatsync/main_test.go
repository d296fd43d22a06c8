package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/chatsync/internal/backendtest"
	"gwi.com/chatsync/internal/config"
	"gwi.com/chatsync/internal/store"
)

func runCLI(t *testing.T, backend *backendtest.Backend, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetArgs(append(args, "--api-url", backend.URL, "--log-level", "error"))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		command string
		arg     string
	}{
		{line: "hello there", command: "", arg: "hello there"},
		{line: "  /switch 2 ", command: "/switch", arg: "2"},
		{line: "/QUIT", command: "/quit", arg: ""},
		{line: "/upload  my notes.pdf", command: "/upload", arg: "my notes.pdf"},
		{line: "", command: "", arg: ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			command, arg := parseLine(tt.line)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.arg, arg)
		})
	}
}

func TestResolveSessionRef(t *testing.T) {
	sessions := []store.Session{{ID: "abc123"}, {ID: "abd456"}, {ID: "7"}}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "1", want: "abc123"},
		{ref: "3", want: "7"},
		{ref: "abd456", want: "abd456"},
		{ref: "abc", want: "abc123"},
		{ref: "ab", wantErr: true},
		{ref: "zzz", wantErr: true},
		{ref: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := resolveSessionRef(sessions, tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, store.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadUpload(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "guide.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0o600))
	png := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(png, []byte("png"), 0o600))

	cfg := config.Config{UploadAccept: []string{".pdf"}}

	f, err := readUpload(cfg, pdf)
	require.NoError(t, err)
	assert.Equal(t, "guide.pdf", f.Name)
	assert.Equal(t, []byte("%PDF-1.4\n"), f.Data)

	_, err = readUpload(cfg, png)
	require.Error(t, err)

	_, err = readUpload(cfg, filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
}

func TestSessionsListJSON(t *testing.T) {
	backend := backendtest.New(t)
	older := backend.SeedSession(t, "Older")
	newer := backend.SeedSession(t, "Newer")

	out, err := runCLI(t, backend, "", "sessions", "list", "-o", "json")
	require.NoError(t, err)

	var sessions []store.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
}

func TestSessionsDeleteByPosition(t *testing.T) {
	backend := backendtest.New(t)
	keep := backend.SeedSession(t, "Keep")
	drop := backend.SeedSession(t, "Drop")

	out, err := runCLI(t, backend, "", "sessions", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, drop.ID)

	remaining, err := backend.Store.ListSessions()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)
}

func TestChatScripted(t *testing.T) {
	backend := backendtest.New(t)
	backend.SeedSession(t, "Existing", [2]string{"earlier", "reply to earlier"})

	out, err := runCLI(t, backend, "hello\n/new\nsecond\n/quit\nignored\n", "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "reply to earlier")
	assert.Contains(t, out, "echo: hello")
	assert.Contains(t, out, "echo: second")
	assert.NotContains(t, out, "ignored")
	assert.EqualValues(t, 2, backend.ChatRequests())

	sessions, err := backend.Store.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	msgs, err := backend.Store.GetMessages(sessions[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
}

func TestUploadCommand(t *testing.T) {
	backend := backendtest.New(t)
	path := filepath.Join(t.TempDir(), "guide.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o600))

	out, err := runCLI(t, backend, "", "upload", path)
	require.NoError(t, err)
	assert.Contains(t, out, "File guide.pdf indexed successfully")
	assert.EqualValues(t, 1, backend.UploadRequests())

	_, err = runCLI(t, backend, "", "upload", path, "--upload-accept", ".txt")
	require.Error(t, err)
	assert.EqualValues(t, 1, backend.UploadRequests())
}
