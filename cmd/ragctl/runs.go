package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	pdfrag "github.com/kailas-cloud/pdfrag/pkg/sdk"
)

func newRunsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs EVENT_ID",
		Short: "Show the runs of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			runs, err := client.Runs(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // sdk errors are already descriptive
			}
			if runs == nil {
				runs = []pdfrag.Run{}
			}

			return opts.print(cmd.OutOrStdout(), runs, func(w io.Writer) {
				if len(runs) == 0 {
					_, _ = fmt.Fprintln(w, "No runs yet")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "RUN\tFUNCTION\tSTATUS\tATTEMPTS\tDURATION\tERROR")
				for _, r := range runs {
					errText := ""
					if r.Error != nil {
						errText = r.Error.Kind + ": " + r.Error.Message
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.FunctionID, r.Status, r.Attempts, runDuration(r), errText)
				}
				_ = tw.Flush()
			})
		},
	}
}

func runDuration(r pdfrag.Run) string {
	if r.StartedAt.IsZero() || r.EndedAt == nil {
		return "-"
	}
	return r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
