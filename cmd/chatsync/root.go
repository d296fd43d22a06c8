package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gwi.com/chatsync/internal/api"
	"gwi.com/chatsync/internal/config"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    config.Config
	client *api.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Chat with the assistant backend and manage chat sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String(config.KeyAPIURL, config.DefaultAPIURL, "Backend base URL (env CHATSYNC_API_URL or API_URL)")
	pf.String(config.KeyLogLevel, config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	pf.String(config.KeyLogFormat, config.DefaultLogFormat, "Log format (text, json)")
	pf.Duration(config.KeyRequestTimeout, config.DefaultRequestTimeout, "Timeout for session and message requests")
	pf.Duration(config.KeyChatTimeout, config.DefaultChatTimeout, "Timeout for a chat reply")
	pf.Duration(config.KeyUploadTimeout, config.DefaultUploadTimeout, "Timeout for a file upload")

	root.AddCommand(
		newSessionsCmd(a),
		newChatCmd(a),
		newUploadCmd(a),
		newStatusCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	initLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	client, err := api.NewClient(api.ClientOpts{
		BaseURL:        cfg.APIURL,
		RequestTimeout: cfg.RequestTimeout,
		ChatTimeout:    cfg.ChatTimeout,
		UploadTimeout:  cfg.UploadTimeout,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = client

	log.Debug().
		Str("api_url", client.BaseURL()).
		Dur("chat_timeout", cfg.ChatTimeout).
		Msg("Loaded configuration")
	return nil
}

func initLogger(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = log.Output(w)

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
