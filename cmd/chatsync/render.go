package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"gwi.com/chatsync/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeStructured prints v as json or yaml.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return errors.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func renderSessions(w io.Writer, sessions []store.Session, current string) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No sessions yet. Start one with /new or `chatsync sessions new`."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, s := range sessions {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n",
			marker,
			strconv.Itoa(i+1),
			titleStyle.Render(sessionTitle(s)),
			idStyle.Render(s.ID),
			dateStyle.Render(formatCreated(s.CreatedAt)),
		)
	}
	_ = tw.Flush()
}

func renderMessages(w io.Writer, msgs []store.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(no messages yet)"))
		return
	}
	for _, m := range msgs {
		renderMessage(w, m)
	}
}

func renderMessage(w io.Writer, m store.Message) {
	switch {
	case m.IsErrorNotice():
		fmt.Fprintln(w, errorStyle.Render(m.Content))
	case m.Role == store.RoleUser:
		fmt.Fprintf(w, "%s %s\n", userStyle.Render("you:"), m.Content)
	default:
		fmt.Fprintf(w, "%s %s\n", assistantStyle.Render("assistant:"), m.Content)
	}
}

func renderUploadStatus(w io.Writer, s store.UploadStatus) {
	switch s.State {
	case store.UploadUploading:
		fmt.Fprintln(w, dimStyle.Render(s.Message))
	case store.UploadSuccess:
		fmt.Fprintln(w, assistantStyle.Render(s.Message))
	case store.UploadFailure:
		fmt.Fprintln(w, errorStyle.Render("Upload failed: "+s.Message))
	}
}

func sessionTitle(s store.Session) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		return "Untitled"
	}
	if len(title) > 50 {
		return title[:47] + "..."
	}
	return title
}

func formatCreated(ts *store.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	t := ts.Local()
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}
