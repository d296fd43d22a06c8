package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gwi.com/chatsync/internal/core"
	"gwi.com/chatsync/internal/store"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List, create, show and delete chat sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsNewCmd(a),
		newSessionsShowCmd(a),
		newSessionsDeleteCmd(a),
	)
	return cmd
}

func newSessionsListCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := a.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if output == formatTable {
				renderSessions(cmd.OutOrStdout(), sessions, "")
				return nil
			}
			return writeStructured(cmd.OutOrStdout(), output, sessions)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format (table, json, yaml)")
	return cmd
}

func newSessionsNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.client.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", titleStyle.Render(sessionTitle(s)), idStyle.Render(s.ID))
			return nil
		},
	}
}

func newSessionsShowCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <n|id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewChatService(a.client, nil, nil, nil)
			if err := svc.Refresh(cmd.Context()); err != nil {
				return err
			}
			id, err := resolveSessionRef(svc.Snapshot().Sessions, args[0])
			if err != nil {
				return err
			}
			if err := svc.SelectSession(cmd.Context(), id); err != nil {
				return err
			}
			snap := svc.Snapshot()
			if output != formatTable {
				return writeStructured(cmd.OutOrStdout(), output, snap.Messages)
			}
			if s, ok := findSession(snap.Sessions, id); ok {
				fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(sessionTitle(s)))
			}
			renderMessages(cmd.OutOrStdout(), snap.Messages)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format (table, json, yaml)")
	return cmd
}

func newSessionsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewChatService(a.client, nil, nil, nil)
			if err := svc.Refresh(cmd.Context()); err != nil {
				return err
			}
			id, err := resolveSessionRef(svc.Snapshot().Sessions, args[0])
			if err != nil {
				return err
			}
			if err := svc.DeleteSession(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", idStyle.Render(id))
			return nil
		},
	}
}

// resolveSessionRef maps a 1-based list position, a full id or an unambiguous
// id prefix to a session id.
func resolveSessionRef(sessions []store.Session, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.WithMessage(store.ErrUnknownSession, "empty session reference")
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(sessions) {
		return sessions[n-1].ID, nil
	}

	if _, ok := findSession(sessions, ref); ok {
		return ref, nil
	}
	var match string
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", errors.WithMessagef(store.ErrValidation, "session reference %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", errors.WithMessagef(store.ErrUnknownSession, "no session matches %q", ref)
	}
	return match, nil
}

func findSession(sessions []store.Session, id string) (store.Session, bool) {
	for _, s := range sessions {
		if s.ID == id {
			return s, true
		}
	}
	return store.Session{}, false
}
