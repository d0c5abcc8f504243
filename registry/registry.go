// Package registry discovers external automation workflows, classifies
// them into capability types and caches the resulting lookup index with a
// time-to-live. Refreshes replace the index wholesale so concurrent
// readers never observe a partially rebuilt mapping.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/logging"
)

// DefaultTTL is the cache lifetime of one catalog snapshot.
const DefaultTTL = 5 * time.Minute

// Options configures a Registry.
type Options struct {
	// TTL is the snapshot lifetime; refreshes inside the window return the
	// cached index without an external fetch unless forced.
	TTL time.Duration
	// BaseWebhookURL prefixes relative webhook paths and fallback targets.
	BaseWebhookURL string
	// WellKnownPaths maps capability types to webhook paths used when a
	// workflow definition exposes no explicit webhook descriptor.
	WellKnownPaths map[core.CapabilityType]string
	// CatalogLimit caps the external catalog fetch (<= 0: provider default).
	CatalogLimit int
	// Logger receives refresh and classification diagnostics.
	Logger logging.Logger
}

// Registry is the concrete core.Registry implementation. Safe for
// concurrent use; concurrent refreshes of an expired snapshot are
// deduplicated to at most one catalog fetch.
type Registry struct {
	core.LoggerAdapter
	catalog core.Catalog
	opts    Options
	group   singleflight.Group

	mu        sync.RWMutex
	snap      *snapshot
	overrides map[string]core.CapabilityType // external workflow id -> pinned type
}

// snapshot is one immutable cache epoch. It is replaced atomically under
// the write lock, never mutated in place.
type snapshot struct {
	index     map[core.CapabilityType][]core.CapabilityHandle
	fetchedAt time.Time
}

// New constructs a Registry over the given catalog boundary.
func New(catalog core.Catalog, optFns ...func(o *Options)) *Registry {
	opts := Options{
		TTL:            DefaultTTL,
		BaseWebhookURL: "http://localhost:5678",
		WellKnownPaths: map[core.CapabilityType]string{
			core.TypeHomeAutomation: "/webhook/chat",
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
		catalog:       catalog,
		opts:          opts,
		overrides:     map[string]core.CapabilityType{},
	}
}

var _ core.Registry = (*Registry)(nil)

// Refresh implements core.Registry. A fetch failure degrades to the stale
// snapshot (possibly empty) and is logged, never returned: a catalog
// outage must not break an in-flight conversation.
func (r *Registry) Refresh(ctx context.Context, force bool) map[core.CapabilityType][]core.CapabilityHandle {
	if idx, ok := r.cached(force); ok {
		return idx
	}

	v, _, _ := r.group.Do("refresh", func() (any, error) {
		// Re-check: a racing caller may have completed the rebuild while
		// this one waited on the flight group.
		if idx, ok := r.cached(force); ok {
			return idx, nil
		}

		entries, err := r.catalog.List(ctx, r.opts.CatalogLimit)
		if err != nil {
			r.LogWarn("catalog fetch failed, serving cached snapshot", "error", err)
			return r.staleIndex(), nil
		}

		index := r.build(entries)

		r.mu.Lock()
		r.snap = &snapshot{index: index, fetchedAt: time.Now()}
		r.mu.Unlock()

		r.LogInfo("capability index rebuilt", "entries", len(entries), "types", len(index))
		return index, nil
	})
	return v.(map[core.CapabilityType][]core.CapabilityHandle)
}

// RegisterHandle implements core.Registry. The pin takes effect on the
// next rebuild; the current epoch is force-expired so the override is
// visible to the next Refresh call.
func (r *Registry) RegisterHandle(t core.CapabilityType, externalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[externalID] = t
	r.snap = nil
}

// cached returns the live index when the snapshot is inside its TTL.
func (r *Registry) cached(force bool) (map[core.CapabilityType][]core.CapabilityHandle, bool) {
	if force {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap != nil && time.Since(r.snap.fetchedAt) < r.opts.TTL {
		return r.snap.index, true
	}
	return nil, false
}

// staleIndex returns the last known good index regardless of age, or an
// empty index when no fetch ever succeeded. The snapshot timestamp is left
// untouched so the next caller retries the fetch.
func (r *Registry) staleIndex() map[core.CapabilityType][]core.CapabilityHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap != nil {
		return r.snap.index
	}
	return map[core.CapabilityType][]core.CapabilityHandle{}
}

// build classifies catalog entries into a fresh lookup index. Entries
// matching no rule are dropped; manual overrides win over the rule table,
// and overridden ids absent from the catalog are synthesized as minimal
// active handles.
func (r *Registry) build(entries []core.CatalogEntry) map[core.CapabilityType][]core.CapabilityHandle {
	r.mu.RLock()
	overrides := make(map[string]core.CapabilityType, len(r.overrides))
	for id, t := range r.overrides {
		overrides[id] = t
	}
	r.mu.RUnlock()

	index := map[core.CapabilityType][]core.CapabilityHandle{}
	seen := map[string]bool{}
	for _, e := range entries {
		t, ok := overrides[e.ID]
		if !ok {
			if t, ok = Classify(e.Name); !ok {
				r.LogDebug("workflow matched no classification rule", "workflow", e.Name)
				continue
			}
		}
		seen[e.ID] = true
		index[t] = append(index[t], core.CapabilityHandle{
			ID:     e.ID,
			Name:   e.Name,
			Active: e.Active,
			Type:   t,
			Target: r.resolveTarget(e, t),
		})
	}
	for id, t := range overrides {
		if seen[id] {
			continue
		}
		index[t] = append(index[t], core.CapabilityHandle{
			ID:     id,
			Name:   id,
			Active: true,
			Type:   t,
			Target: r.fallbackTarget(id),
		})
	}
	return index
}

// resolveTarget derives a callable address for a catalog entry. Precedence:
// an explicit webhook descriptor embedded in the workflow definition, then
// a well-known per-type path, then a deterministic fallback built from the
// workflow id. The chain exists because the external catalog inconsistently
// exposes invocation addresses.
func (r *Registry) resolveTarget(e core.CatalogEntry, t core.CapabilityType) string {
	if target := r.webhookFromDefinition(e.RawDefinition); target != "" {
		return target
	}
	if path, ok := r.opts.WellKnownPaths[t]; ok {
		return r.opts.BaseWebhookURL + path
	}
	return r.fallbackTarget(e.ID)
}

// webhookFromDefinition scans the raw workflow document for a webhook
// trigger node. The document shape is provider controlled, so parsing is
// tolerant: anything missing yields "" and the next precedence level applies.
func (r *Registry) webhookFromDefinition(raw []byte) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}
	var target string
	gjson.GetBytes(raw, "nodes").ForEach(func(_, node gjson.Result) bool {
		if !strings.HasSuffix(node.Get("type").String(), ".webhook") {
			return true
		}
		if path := node.Get("parameters.path").String(); path != "" {
			switch {
			case strings.HasPrefix(path, "http"):
				target = path
			case strings.HasPrefix(path, "/"):
				target = r.opts.BaseWebhookURL + path
			default:
				target = r.opts.BaseWebhookURL + "/webhook/" + path
			}
			return false
		}
		if id := node.Get("webhookId").String(); id != "" {
			target = r.opts.BaseWebhookURL + "/webhook/" + id
			return false
		}
		return true
	})
	return target
}

func (r *Registry) fallbackTarget(id string) string {
	return r.opts.BaseWebhookURL + "/webhook/" + id
}
