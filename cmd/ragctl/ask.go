package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

type askOutput struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a question about the ingested PDFs and wait for the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ans, err := client.Ask(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err //nolint:wrapcheck // typed sdk error
			}

			out := askOutput{Answer: ans.Answer, Sources: ans.Sources, NumContexts: ans.NumContexts}
			return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				_, _ = fmt.Fprintln(w, out.Answer)
				if len(out.Sources) > 0 {
					_, _ = fmt.Fprintln(w, "\nSources:")
					for _, s := range uniqueSources(out.Sources) {
						_, _ = fmt.Fprintf(w, "- %s\n", s)
					}
				}
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", domain.DefaultTopK, "number of chunks to retrieve (1-20)")
	return cmd
}

// uniqueSources keeps first-seen order.
func uniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
