package pdfrag_test

import (
	"context"
	"hash/fnv"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/chunker"
	"github.com/kailas-cloud/pdfrag/internal/coordinator"
	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/pdftext"
	"github.com/kailas-cloud/pdfrag/internal/repository/memory"
	"github.com/kailas-cloud/pdfrag/internal/testutil"
	chiTransport "github.com/kailas-cloud/pdfrag/internal/transport/chi"
	embeddinguc "github.com/kailas-cloud/pdfrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/pdfrag/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/pdfrag/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/pdfrag/internal/usecase/query"
	pdfrag "github.com/kailas-cloud/pdfrag/pkg/sdk"
)

const testDim = 32

// bagOfWords hashes lowercase words into a fixed-size count vector.
type bagOfWords struct{}

func (bagOfWords) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := make([]float32, testDim)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDim]++
	}
	return domain.EmbeddingResult{Embedding: vec, TotalTokens: 1}, nil
}

// echoGenerator answers with the first context line of the prompt.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (domain.GenerationResult, error) {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			return domain.GenerationResult{Text: strings.TrimPrefix(line, "- ")}, nil
		}
	}
	return domain.GenerationResult{Text: "I don't know."}, nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) HealthCheck(context.Context) error { return nil }

func startStack(t *testing.T) (*pdfrag.Client, *memory.Index) {
	t.Helper()
	logger := zap.NewNop()

	idx := memory.New(testDim)
	chunk, err := chunker.New(chunker.Config{Size: 80, Overlap: 10})
	require.NoError(t, err)

	embeddings := embeddinguc.NewService(bagOfWords{}, testDim, 2, logger)
	ingestSvc := ingestuc.New(pdftext.New(logger), chunk, embeddings, idx)
	querySvc := queryuc.New(embeddings, idx, echoGenerator{})

	engine := coordinator.New(coordinator.NewMemoryStore(), coordinator.Config{
		Workers:   2,
		RetryBase: 10 * time.Millisecond,
	}, logger)
	require.NoError(t, engine.Register(coordinator.IngestFunction(ingestuc.FunctionID,
		func(ctx context.Context, p domain.IngestPayload) (map[string]any, error) {
			res, err := ingestSvc.Ingest(ctx, p)
			if err != nil {
				return nil, err
			}
			return res.Output(), nil
		})))
	require.NoError(t, engine.Register(coordinator.QueryFunction(queryuc.FunctionID,
		func(ctx context.Context, p domain.QueryPayload) (map[string]any, error) {
			ans, err := querySvc.Ask(ctx, p)
			if err != nil {
				return nil, err
			}
			return ans.Output(), nil
		})))

	health := healthuc.New(idx, alwaysHealthy{})
	server := httptest.NewServer(chiTransport.NewServer(engine, health, "e2e", []string{"api-key"}, logger).Router())
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})

	client, err := pdfrag.New(
		pdfrag.WithEventAPI(server.URL, "e2e"),
		pdfrag.WithAPIKey("api-key"),
		pdfrag.WithPollInterval(5*time.Millisecond),
		pdfrag.WithTimeout(10*time.Second),
	)
	require.NoError(t, err)
	return client, idx
}

func TestEndToEnd_IngestThenAsk(t *testing.T) {
	client, idx := startStack(t)
	ctx := context.Background()

	path := testutil.WritePDF(t, t.TempDir(), "fleet.pdf", []string{
		"The fleet has seven ships. Each ship carries forty sailors. The ships sail at dawn.",
		"The harbour master keeps the logbook. Storms are recorded daily in the logbook.",
	})

	ing, err := client.Ingest(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, "fleet.pdf", ing.SourceID)
	assert.Equal(t, 2, ing.Pages)
	assert.GreaterOrEqual(t, ing.ChunksIndexed, 2)
	assert.Zero(t, ing.Replaced)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, ing.ChunksIndexed, count)

	ans, err := client.Ask(ctx, "How many ships are in the fleet?", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Answer)
	assert.Contains(t, ans.Sources, "fleet.pdf")
	assert.LessOrEqual(t, ans.NumContexts, 3)

	// Re-ingesting the same source replaces its entries.
	again, err := client.Ingest(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, ing.ChunksIndexed, again.Replaced)
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, again.ChunksIndexed, count)
}

func TestEndToEnd_AskEmptyIndex(t *testing.T) {
	client, _ := startStack(t)

	ans, err := client.Ask(context.Background(), "Anything?", 0)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.NotNil(t, ans.Sources)
}

func TestEndToEnd_UnreadablePDF(t *testing.T) {
	client, _ := startStack(t)
	ctx := context.Background()

	eventID, err := client.SendIngest(ctx, "/nonexistent/missing.pdf", "missing.pdf")
	require.NoError(t, err)

	res, err := client.Wait(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, pdfrag.Failed, res.Outcome)
	require.NotNil(t, res.Run)
	assert.Equal(t, 1, res.Run.Attempts, "extraction errors are not retried")

	var fe *pdfrag.RunFailureError
	require.ErrorAs(t, res.Err(), &fe)
	assert.Equal(t, domain.KindExtraction, fe.Kind)
}

func TestEndToEnd_Runs(t *testing.T) {
	client, _ := startStack(t)
	ctx := context.Background()

	eventID, err := client.SendQuery(ctx, "q", 1)
	require.NoError(t, err)

	runs, err := client.Runs(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, queryuc.FunctionID, runs[0].FunctionID)
}
