// Package ingest turns raw OTLP payloads into persisted spans, live
// counter updates and stream broadcasts.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracely-io/tracely/internal/counters"
	"github.com/tracely-io/tracely/internal/otlp"
	"github.com/tracely-io/tracely/internal/spanstore"
	"github.com/tracely-io/tracely/internal/stream"
	"github.com/tracely-io/tracely/pkg/models"
)

// backgroundTimeout bounds counter updates started after the HTTP
// request has already been answered.
const backgroundTimeout = 5 * time.Second

// Writer is the ingestion pipeline. Span persistence is the only step on
// the critical path; counters and broadcasts never fail a request.
type Writer struct {
	spans    spanstore.Store
	counters *counters.Store
	streams  *stream.Manager

	wg sync.WaitGroup
}

func NewWriter(spans spanstore.Store, counterStore *counters.Store, streams *stream.Manager) *Writer {
	return &Writer{
		spans:    spans,
		counters: counterStore,
		streams:  streams,
	}
}

// Ingest decodes an OTLP payload and writes its spans in a single batch.
// It returns the number of spans persisted. Decode failures surface as
// otlp.ErrMalformedPayload; storage failures are fatal for the request.
func (w *Writer) Ingest(ctx context.Context, raw []byte, orgID, projectID uuid.UUID) (int, error) {
	spans, err := otlp.Decode(raw, orgID, projectID)
	if err != nil {
		return 0, err
	}
	if len(spans) == 0 {
		return 0, nil
	}

	if err := w.spans.InsertSpans(ctx, spans); err != nil {
		return 0, fmt.Errorf("insert spans: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.updateCounters(projectID, spans)
	}()

	if w.streams.ConnectionCount(projectID) > 0 {
		w.broadcast(projectID, spans)
	}

	return len(spans), nil
}

// updateCounters bumps the per-minute request and error counters, one
// request per span plus one error per errored span.
func (w *Writer) updateCounters(projectID uuid.UUID, spans []models.SpanRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	for i := range spans {
		w.counters.IncrementRequest(ctx, projectID)
		if spans[i].StatusCode == models.StatusError {
			w.counters.IncrementError(ctx, projectID)
		}
	}
}

func (w *Writer) broadcast(projectID uuid.UUID, spans []models.SpanRecord) {
	summaries := make([]*models.SpanSummary, 0, len(spans))
	for i := range spans {
		s := spans[i].Summary()
		summaries = append(summaries, &s)
	}
	w.streams.Broadcast(projectID, summaries)
}

// Drain waits for in-flight background counter updates. Called during
// server shutdown.
func (w *Writer) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("ingest drain timed out", "error", ctx.Err())
	}
}
