package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gwi.com/chatsync/internal/api"
	"gwi.com/chatsync/internal/config"
	"gwi.com/chatsync/internal/core"
	"gwi.com/chatsync/internal/events"
	"gwi.com/chatsync/internal/store"
)

const replHelp = `Type a message and press enter to send it. Commands:
  /new              start a new session
  /list             list sessions (* marks the active one)
  /switch <n|id>    switch to another session
  /delete [n|id]    delete a session (default: the active one)
  /upload <path>    upload a document
  /refresh          reload the session list
  /help             show this help
  /quit             leave`

func newChatCmd(a *app) *cobra.Command {
	var sessionRef string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runChat(ctx, cancel, a, sessionRef, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionRef, "session", "", "Session to open (list position or id); defaults to the newest")
	cmd.Flags().String(config.KeyUploadAccept, config.DefaultUploadAccept, "Comma separated file extensions accepted by /upload (empty accepts all)")
	return cmd
}

func runChat(ctx context.Context, cancel context.CancelFunc, a *app, sessionRef string, in io.Reader, out io.Writer) error {
	bus := events.NewBus(log.Logger)
	defer func() { _ = bus.Close() }()

	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	r := &repl{
		svc:         core.NewChatService(a.client, nil, nil, bus),
		uploads:     core.NewUploadService(a.client, bus, a.cfg.UploadStatusTTL),
		cfg:         a.cfg,
		out:         out,
		interactive: isTerminal(in),
	}
	defer r.uploads.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.render(gctx, sub)
	})

	if r.interactive {
		r.println(dimStyle.Render("Connected to " + a.client.BaseURL() + ". Type /help for commands."))
	}
	if err := r.svc.Initialize(gctx); err != nil {
		r.printErr(err)
	}
	if sessionRef != "" {
		if id, err := resolveSessionRef(r.svc.Snapshot().Sessions, sessionRef); err != nil {
			r.printErr(err)
		} else if err := r.svc.SelectSession(gctx, id); err != nil {
			r.printErr(err)
		}
	}

	g.Go(func() error {
		defer cancel()
		return r.readLoop(gctx, in)
	})
	return g.Wait()
}

// repl reads commands and renders bus events. Output from both sides is
// serialized through mu.
type repl struct {
	svc     *core.ChatService
	uploads *core.UploadService
	cfg     config.Config

	// interactive input echoes nothing and runs requests in the background
	interactive bool

	mu       sync.Mutex
	out      io.Writer
	sessions []store.Session

	inflight sync.WaitGroup
}

func (r *repl) render(ctx context.Context, sub <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			r.handleEvent(e)
		}
	}
}

func (r *repl) handleEvent(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case events.TypeSessionsUpdated:
		r.sessions = e.Sessions
	case events.TypeConversationLoaded:
		switch {
		case e.SessionID == "":
			fmt.Fprintln(r.out, dimStyle.Render("No session selected. Use /new to start one."))
		case e.Loading:
			title := e.SessionID
			if s, ok := findSession(r.sessions, e.SessionID); ok {
				title = sessionTitle(s)
			}
			fmt.Fprintln(r.out, headerStyle.Render("── "+title+" ──"))
		default:
			renderMessages(r.out, e.Messages)
		}
	case events.TypeMessageAppended:
		if e.Message == nil || (e.Message.Role == store.RoleUser && r.interactive) {
			return
		}
		renderMessage(r.out, *e.Message)
	case events.TypeSendState:
		if e.Sending {
			fmt.Fprintln(r.out, dimStyle.Render("waiting for reply..."))
		}
	case events.TypeUploadStatus:
		if e.Upload != nil {
			renderUploadStatus(r.out, *e.Upload)
		}
	}
}

// readLoop handles input lines until /quit, end of input or ctx is done. At
// end of input it waits for outstanding requests so their results are shown.
func (r *repl) readLoop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				r.inflight.Wait()
				return nil
			}
			if quit := r.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (r *repl) handleLine(ctx context.Context, line string) bool {
	command, arg := parseLine(line)
	switch command {
	case "":
		if strings.TrimSpace(arg) == "" {
			return false
		}
		r.async(func() {
			if err := r.svc.SendMessage(ctx, arg); err != nil {
				r.printErr(err)
			}
		})
	case "/quit", "/exit":
		return true
	case "/help":
		r.println(replHelp)
	case "/list":
		snap := r.svc.Snapshot()
		r.mu.Lock()
		renderSessions(r.out, snap.Sessions, snap.CurrentSessionID)
		r.mu.Unlock()
	case "/new":
		r.async(func() {
			if _, err := r.svc.CreateSession(ctx); err != nil {
				r.printErr(err)
			}
		})
	case "/refresh":
		r.async(func() {
			if err := r.svc.Refresh(ctx); err != nil {
				r.printErr(err)
			}
		})
	case "/switch":
		id, err := resolveSessionRef(r.svc.Snapshot().Sessions, arg)
		if err != nil {
			r.printErr(err)
			return false
		}
		r.async(func() {
			if err := r.svc.SelectSession(ctx, id); err != nil {
				r.printErr(err)
			}
		})
	case "/delete":
		snap := r.svc.Snapshot()
		id := snap.CurrentSessionID
		if arg != "" {
			var err error
			if id, err = resolveSessionRef(snap.Sessions, arg); err != nil {
				r.printErr(err)
				return false
			}
		}
		if id == "" {
			r.printErr(store.ErrNoActiveSession)
			return false
		}
		r.async(func() {
			if err := r.svc.DeleteSession(ctx, id); err != nil {
				r.printErr(err)
			}
		})
	case "/upload":
		f, err := readUpload(r.cfg, arg)
		if err != nil {
			r.printErr(err)
			return false
		}
		r.async(func() {
			if _, err := r.uploads.Upload(ctx, f); err != nil {
				r.printErr(err)
			}
		})
	default:
		r.printErr(errors.Errorf("unknown command %s, try /help", command))
	}
	return false
}

// async runs f without blocking input, so the user can switch sessions while a
// reply is pending. Scripted input runs f inline to keep its order.
func (r *repl) async(f func()) {
	if !r.interactive {
		f()
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		f()
	}()
}

func (r *repl) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}

func (r *repl) printErr(err error) {
	r.println(errorStyle.Render("! " + api.ErrorMessage(err)))
}

// parseLine splits a slash command from its argument. Lines that are not
// commands come back unchanged as the argument.
func parseLine(line string) (command, arg string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", line
	}
	command, arg, _ = strings.Cut(trimmed, " ")
	return strings.ToLower(command), strings.TrimSpace(arg)
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
