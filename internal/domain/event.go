package domain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EventName identifies the workflow an event triggers.
type EventName string

// Known event names.
const (
	EventIngestPDF EventName = "rag/ingest_pdf"
	EventQueryPDF  EventName = "rag/query_pdf_ai"
)

// Event is an immutable trigger accepted by the coordinator.
type Event struct {
	ID        string         `json:"id"`
	Name      EventName      `json:"name"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"ts"`
}

// IngestPayload is the data of a rag/ingest_pdf event.
type IngestPayload struct {
	PDFPath  string `json:"pdf_path"`
	SourceID string `json:"source_id"`
}

// Validate checks the payload contract: an absolute PDF path and a source id.
func (p IngestPayload) Validate() error {
	if p.PDFPath == "" {
		return fmt.Errorf("pdf_path is required: %w", ErrInvalidArgument)
	}
	if !filepath.IsAbs(p.PDFPath) {
		return fmt.Errorf("pdf_path must be absolute, got %q: %w", p.PDFPath, ErrInvalidArgument)
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return fmt.Errorf("source_id is required: %w", ErrInvalidArgument)
	}
	return nil
}

// Data converts the payload into event data.
func (p IngestPayload) Data() map[string]any {
	return map[string]any{"pdf_path": p.PDFPath, "source_id": p.SourceID}
}

// QueryPayload is the data of a rag/query_pdf_ai event.
type QueryPayload struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Validate checks that a question is present.
func (p QueryPayload) Validate() error {
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("question is required: %w", ErrInvalidArgument)
	}
	return nil
}

// Data converts the payload into event data.
func (p QueryPayload) Data() map[string]any {
	return map[string]any{"question": p.Question, "top_k": p.TopK}
}

// DecodeIngest reads an IngestPayload from event data.
func DecodeIngest(data map[string]any) (IngestPayload, error) {
	var p IngestPayload
	if err := decodeData(data, &p); err != nil {
		return IngestPayload{}, err
	}
	return p, p.Validate()
}

// DecodeQuery reads a QueryPayload from event data. Missing top_k becomes DefaultTopK.
func DecodeQuery(data map[string]any) (QueryPayload, error) {
	var raw struct {
		Question string `json:"question"`
		TopK     *int   `json:"top_k"`
	}
	if err := decodeData(data, &raw); err != nil {
		return QueryPayload{}, err
	}
	p := QueryPayload{Question: raw.Question, TopK: DefaultTopK}
	if raw.TopK != nil {
		p.TopK = *raw.TopK
	}
	return p, p.Validate()
}

func decodeData(data map[string]any, dst any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", ErrInvalidArgument)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode event data: %v: %w", err, ErrInvalidArgument)
	}
	return nil
}
