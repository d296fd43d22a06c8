package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if output != formatTable {
				return writeStructured(cmd.OutOrStdout(), output, h)
			}
			ready := "no documents indexed"
			if h.RAGReady {
				ready = "documents indexed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", headerStyle.Render(a.client.BaseURL()), h.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s\n  retrieval: %s\n", h.DB, dimStyle.Render(ready))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format (table, json, yaml)")
	return cmd
}
