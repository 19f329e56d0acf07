package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/pdfrag/internal/config"
	"github.com/kailas-cloud/pdfrag/internal/version"
	pdfrag "github.com/kailas-cloud/pdfrag/pkg/sdk"
)

type globalOptions struct {
	eventURL     string
	eventKey     string
	apiURL       string
	apiKey       string
	timeout      time.Duration
	pollInterval time.Duration
	backoff      bool
	uploadsDir   string
	jsonOutput   bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Ingest PDFs and ask questions through a pdfrag coordinator",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.eventURL, "event-url", envOr("PDFRAG_EVENT_URL", "http://localhost:8080"), "coordinator base URL")
	f.StringVar(&opts.eventKey, "event-key", envOr("EVENT_KEY", "local"), "event key for POST /e/{key}")
	f.StringVar(&opts.apiURL, "api-url", os.Getenv("PDFRAG_API_URL"), "run API base URL (default: <event-url>/v1)")
	f.StringVar(&opts.apiKey, "api-key", os.Getenv("PDFRAG_API_KEY"), "bearer token for the run API")
	f.DurationVar(&opts.timeout, "timeout", pdfrag.DefaultTimeout, "how long to wait for a run")
	f.DurationVar(&opts.pollInterval, "poll-interval", pdfrag.DefaultPollInterval, "delay between status polls")
	f.BoolVar(&opts.backoff, "backoff", false, "grow the poll interval exponentially")
	f.StringVar(&opts.uploadsDir, "uploads-dir", envOr("UPLOADS_DIR", "uploads"), "directory shared with the workers")
	f.BoolVar(&opts.jsonOutput, "json", false, "print JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log SDK operations to stderr")

	root.AddCommand(
		newIngestCmd(opts),
		newAskCmd(opts),
		newRunsCmd(opts),
	)
	return root
}

func (o *globalOptions) client(stderr io.Writer) (*pdfrag.Client, error) {
	sdkOpts := []pdfrag.Option{
		pdfrag.WithEventAPI(o.eventURL, o.eventKey),
		pdfrag.WithTimeout(o.timeout),
		pdfrag.WithPollInterval(o.pollInterval),
	}
	if o.apiURL != "" {
		sdkOpts = append(sdkOpts, pdfrag.WithAPI(o.apiURL))
	}
	if o.apiKey != "" {
		sdkOpts = append(sdkOpts, pdfrag.WithAPIKey(o.apiKey))
	}
	if o.backoff {
		sdkOpts = append(sdkOpts, pdfrag.WithBackoff(0))
	}
	if o.verbose {
		h := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		sdkOpts = append(sdkOpts, pdfrag.WithLogger(slog.New(h)))
	}

	c, err := pdfrag.New(sdkOpts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (o *globalOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}
	text(w)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
