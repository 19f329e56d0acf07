package coordinator

import (
	"context"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// IngestFunction binds an ingestion workflow to rag/ingest_pdf.
func IngestFunction(
	id string,
	run func(ctx context.Context, p domain.IngestPayload) (map[string]any, error),
) Function {
	return Function{
		ID:      id,
		Trigger: domain.EventIngestPDF,
		Validate: func(data map[string]any) error {
			_, err := domain.DecodeIngest(data)
			return err
		},
		Handler: func(ctx context.Context, ev domain.Event) (map[string]any, error) {
			p, err := domain.DecodeIngest(ev.Data)
			if err != nil {
				return nil, err //nolint:wrapcheck // domain validation error
			}
			return run(ctx, p)
		},
	}
}

// QueryFunction binds a query workflow to rag/query_pdf_ai.
func QueryFunction(
	id string,
	run func(ctx context.Context, p domain.QueryPayload) (map[string]any, error),
) Function {
	return Function{
		ID:      id,
		Trigger: domain.EventQueryPDF,
		Validate: func(data map[string]any) error {
			_, err := domain.DecodeQuery(data)
			return err
		},
		Handler: func(ctx context.Context, ev domain.Event) (map[string]any, error) {
			p, err := domain.DecodeQuery(ev.Data)
			if err != nil {
				return nil, err //nolint:wrapcheck // domain validation error
			}
			return run(ctx, p)
		},
	}
}
