package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/pdfrag/internal/uploads"
)

type ingestOutput struct {
	EventID       string `json:"event_id"`
	Path          string `json:"pdf_path"`
	SourceID      string `json:"source_id"`
	Status        string `json:"status,omitempty"`
	ChunksIndexed int    `json:"chunks_indexed,omitempty"`
	Pages         int    `json:"pages,omitempty"`
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var (
		sourceID string
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Copy a PDF into the uploads directory and submit it for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := uploads.New(opts.uploadsDir).Save(args[0], "")
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			client, err := opts.client(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eventID, err := client.SendIngest(ctx, path, sourceID)
			if err != nil {
				return err //nolint:wrapcheck // sdk errors are already descriptive
			}
			out := ingestOutput{EventID: eventID, Path: path, SourceID: sourceID}
			if out.SourceID == "" {
				out.SourceID = fileName(path)
			}

			if wait {
				res, err := client.Wait(ctx, eventID)
				if err != nil {
					return err //nolint:wrapcheck // sdk errors are already descriptive
				}
				if err := res.Err(); err != nil {
					return err //nolint:wrapcheck // typed sdk error
				}
				out.Status = string(res.Status)
				out.ChunksIndexed = intOutput(res.Output(), "chunks_indexed")
				out.Pages = intOutput(res.Output(), "pages")
			}

			return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "Triggered ingest for %s (event %s)\n", out.SourceID, out.EventID)
				if out.Status != "" {
					_, _ = fmt.Fprintf(w, "%s: %d chunks from %d pages\n", out.Status, out.ChunksIndexed, out.Pages)
				}
			})
		},
	}

	cmd.Flags().StringVar(&sourceID, "source-id", "", "source id (default: the file name)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the document is indexed")
	return cmd
}

func intOutput(out map[string]any, key string) int {
	if v, ok := out[key].(float64); ok {
		return int(v)
	}
	return 0
}

func fileName(path string) string {
	return filepath.Base(path)
}
