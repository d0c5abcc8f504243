// Package invoker executes single capability invocations against resolved
// webhook targets, normalizing every transport outcome into a StepResult.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

// DefaultTimeout bounds a single webhook dispatch when the caller does not
// supply one.
const DefaultTimeout = 30 * time.Second

// Options configures a WebhookInvoker.
type Options struct {
	// HTTPClient performs the dispatch; per-call timeouts are applied via
	// request contexts, so the client itself needs no timeout.
	HTTPClient *http.Client
	// Enricher supplies the best-effort metadata context block. Nil
	// disables enrichment.
	Enricher core.Enricher
	// DefaultTimeout applies when Invoke receives a non-positive timeout.
	DefaultTimeout time.Duration
	// Logger receives invocation diagnostics.
	Logger logging.Logger
}

// WebhookInvoker is the concrete core.Invoker. It resolves a handle via
// the registry, enriches the payload with session metadata, performs one
// synchronous POST and measures wall-clock time regardless of outcome.
type WebhookInvoker struct {
	core.LoggerAdapter
	registry core.Registry
	opts     Options
}

// New constructs a WebhookInvoker resolving handles through the given registry.
func New(reg core.Registry, optFns ...func(o *Options)) *WebhookInvoker {
	opts := Options{
		HTTPClient:     http.DefaultClient,
		DefaultTimeout: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WebhookInvoker{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		registry:      reg,
		opts:          opts,
	}
}

var _ core.Invoker = (*WebhookInvoker)(nil)

// Invoke implements core.Invoker. The HTTP status code is authoritative
// for success classification; a success status with an unparsable body
// still succeeds with the raw body as payload.
func (i *WebhookInvoker) Invoke(ctx context.Context, t core.CapabilityType, payload, sessionCtx map[string]any, timeout time.Duration) core.StepResult {
	start := time.Now()

	index := i.registry.Refresh(ctx, false)
	handle, ok := core.FirstActiveHandle(index, t)
	if !ok {
		res := core.FailedStep(t, time.Since(start), "no active capability handle for type %s", t)
		i.LogWarn("invocation rejected", "capability", t, "error", res.Error)
		return res
	}

	body := i.enrich(ctx, t, payload, sessionCtx)

	if timeout <= 0 {
		timeout = i.opts.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := i.dispatch(callCtx, handle, body)
	res.Elapsed = time.Since(start)
	if res.Success {
		i.LogDebug("invocation completed", "capability", t, "target", handle.Target, "elapsed", res.Elapsed)
	} else {
		i.LogWarn("invocation failed", "capability", t, "target", handle.Target, "error", res.Error)
	}
	return res
}

// enrich builds the wire payload: caller payload plus session id, the
// capability type tag, a timestamp, a fresh invocation id and the
// best-effort enrichment block. Enrichment failures are logged and
// swallowed; absence of context is not a failure.
func (i *WebhookInvoker) enrich(ctx context.Context, t core.CapabilityType, payload, sessionCtx map[string]any) map[string]any {
	body := make(map[string]any, len(payload)+5)
	for k, v := range payload {
		body[k] = v
	}
	for k, v := range sessionCtx {
		body[k] = v
	}
	body["capability_type"] = string(t)
	body["invocation_id"] = uuid.NewString()
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	if i.opts.Enricher == nil {
		return body
	}
	entityRef, _ := body["entity_ref"].(string)
	block, err := i.opts.Enricher.Enrich(ctx, t, entityRef)
	if err != nil {
		i.LogDebug("enrichment unavailable", "capability", t, "error", err)
		return body
	}
	if len(block) > 0 {
		body["context"] = block
	}
	return body
}

// dispatch performs the single POST. Elapsed is filled in by the caller.
func (i *WebhookInvoker) dispatch(ctx context.Context, handle core.CapabilityHandle, body map[string]any) core.StepResult {
	encoded, err := json.Marshal(body)
	if err != nil {
		return core.FailedStep(handle.Type, 0, "encode payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, handle.Target, bytes.NewReader(encoded))
	if err != nil {
		return core.FailedStep(handle.Type, 0, "build request for %s: %v", handle.Target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.opts.HTTPClient.Do(req)
	if err != nil {
		return core.FailedStep(handle.Type, 0, "dispatch to %s: %v", handle.Target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.FailedStep(handle.Type, 0, "read response from %s: %v", handle.Target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.FailedStep(handle.Type, 0, "workflow %q returned status %d: %s", handle.Name, resp.StatusCode, truncate(raw, 256))
	}

	return core.StepResult{Type: handle.Type, Success: true, Payload: decodeBody(raw)}
}

// decodeBody parses a response tolerantly: a JSON object becomes the
// payload map, any other body (valid JSON scalar/array included) is kept
// raw. Strict schema validation is deliberately absent.
func decodeBody(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	if gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject() {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err == nil {
			return payload
		}
	}
	return map[string]any{"raw": string(raw)}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
