package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/internal/testutil"
	"github.com/flowrelay/flowrelay/registry"
)

// newRegistryFor builds a registry whose data-analysis handle targets url.
func newRegistryFor(url string) *registry.Registry {
	raw := fmt.Sprintf(
		`{"id":"w1","name":"Data Insights Collector","active":true,"nodes":[{"type":"n8n-nodes-base.webhook","parameters":{"path":%q}}]}`,
		url,
	)
	entry := core.CatalogEntry{
		ID:            "w1",
		Name:          "Data Insights Collector",
		Active:        true,
		RawDefinition: json.RawMessage(raw),
	}
	return registry.New(testutil.NewStaticCatalog(entry))
}

func TestWebhookInvoker_Invoke_Success(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"insights":["a","b"],"rows":3}`))
	}))
	defer srv.Close()

	inv := New(newRegistryFor(srv.URL))

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis,
		map[string]any{"query": "revenue"},
		map[string]any{"session_id": "sess-1"},
		0,
	)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, core.TypeDataAnalysis, res.Type)
	assert.Equal(t, float64(3), res.Payload["rows"])
	assert.Greater(t, res.Elapsed, time.Duration(0))

	// Enriched wire payload.
	assert.Equal(t, "revenue", received["query"])
	assert.Equal(t, "sess-1", received["session_id"])
	assert.Equal(t, "data-analysis", received["capability_type"])
	assert.NotEmpty(t, received["invocation_id"])
	assert.NotEmpty(t, received["timestamp"])
}

func TestWebhookInvoker_Invoke_NonJSONBodyKeptRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Workflow was started"))
	}))
	defer srv.Close()

	inv := New(newRegistryFor(srv.URL))

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis, nil, nil, 0)

	require.True(t, res.Success)
	assert.Equal(t, "Workflow was started", res.Payload["raw"])
}

func TestWebhookInvoker_Invoke_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	inv := New(newRegistryFor(srv.URL))

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis, nil, nil, 0)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "status 502")
	assert.Contains(t, res.Error, "upstream exploded")
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestWebhookInvoker_Invoke_NoActiveHandle(t *testing.T) {
	reg := registry.New(testutil.NewStaticCatalog())
	inv := New(reg)

	res := inv.Invoke(context.Background(), core.TypeApproval, nil, nil, 0)

	require.False(t, res.Success)
	assert.Equal(t, "no active capability handle for type approval", res.Error)
}

func TestWebhookInvoker_Invoke_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	inv := New(newRegistryFor(srv.URL))

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis, nil, nil, 20*time.Millisecond)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "dispatch")
}

type staticEnricher struct {
	block map[string]any
	err   error

	gotType core.CapabilityType
	gotRef  string
}

func (e *staticEnricher) Enrich(_ context.Context, t core.CapabilityType, entityRef string) (map[string]any, error) {
	e.gotType = t
	e.gotRef = entityRef
	return e.block, e.err
}

func TestWebhookInvoker_Invoke_EnrichmentBlock(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	enr := &staticEnricher{block: map[string]any{"dataset": "sales"}}
	inv := New(newRegistryFor(srv.URL), func(o *Options) { o.Enricher = enr })

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis,
		map[string]any{"entity_ref": "dataset:sales"}, nil, 0)

	require.True(t, res.Success)
	assert.Equal(t, core.TypeDataAnalysis, enr.gotType)
	assert.Equal(t, "dataset:sales", enr.gotRef)

	ctxBlock, ok := received["context"].(map[string]any)
	require.True(t, ok, "enrichment block attached under context")
	assert.Equal(t, "sales", ctxBlock["dataset"])
}

func TestWebhookInvoker_Invoke_EnrichmentFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	enr := &staticEnricher{err: errors.New("metadata service down")}
	inv := New(newRegistryFor(srv.URL), func(o *Options) { o.Enricher = enr })

	res := inv.Invoke(context.Background(), core.TypeDataAnalysis, nil, nil, 0)

	require.True(t, res.Success, "enrichment failure must not fail the invocation")
	assert.Equal(t, true, res.Payload["ok"])
}
