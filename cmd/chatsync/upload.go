package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gwi.com/chatsync/internal/config"
	"gwi.com/chatsync/internal/core"
	"gwi.com/chatsync/internal/store"
)

func newUploadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for the assistant to index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readUpload(a.cfg, args[0])
			if err != nil {
				return err
			}
			svc := core.NewUploadService(a.client, nil, a.cfg.UploadStatusTTL)
			defer svc.Close()

			renderUploadStatus(cmd.OutOrStdout(), store.UploadStatus{State: store.UploadUploading, Message: fmt.Sprintf("Uploading %s...", f.Name)})
			status, err := svc.Upload(cmd.Context(), f)
			if err != nil {
				return err
			}
			renderUploadStatus(cmd.OutOrStdout(), status)
			if status.State == store.UploadFailure {
				return errors.New(status.Message)
			}
			return nil
		},
	}
	cmd.Flags().String(config.KeyUploadAccept, config.DefaultUploadAccept, "Comma separated file extensions accepted for upload (empty accepts all)")
	return cmd
}

// readUpload loads path after checking its extension against the accept list.
func readUpload(cfg config.Config, path string) (core.UploadFile, error) {
	name := filepath.Base(path)
	if !cfg.Accepts(name) {
		return core.UploadFile{}, errors.Errorf("%s: only %s files can be uploaded", name, strings.Join(cfg.UploadAccept, ", "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.UploadFile{}, errors.Wrapf(err, "read %s", path)
	}
	return core.UploadFile{Name: name, Data: data}, nil
}
