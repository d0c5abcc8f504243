package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flowrelay/flowrelay/core"
)

// StaticCatalog serves a fixed entry list and counts fetches, so tests can
// assert cache behavior. Setting Err makes every List call fail until it is
// cleared.
type StaticCatalog struct {
	mu      sync.Mutex
	entries []core.CatalogEntry
	err     error
	fetches int
}

var _ core.Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog creates a catalog serving the given entries.
func NewStaticCatalog(entries ...core.CatalogEntry) *StaticCatalog {
	return &StaticCatalog{entries: entries}
}

// List implements core.Catalog.
func (c *StaticCatalog) List(_ context.Context, _ int) ([]core.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches++
	if c.err != nil {
		return nil, c.err
	}

	out := make([]core.CatalogEntry, len(c.entries))
	copy(out, c.entries)

	return out, nil
}

// Fetches reports how many times List has been called.
func (c *StaticCatalog) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// SetErr makes subsequent List calls return err. Pass nil to restore
// normal operation.
func (c *StaticCatalog) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// SetEntries replaces the served entry list.
func (c *StaticCatalog) SetEntries(entries ...core.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}

// Entry builds an active catalog entry with a minimal raw definition.
func Entry(id, name string) core.CatalogEntry {
	return core.CatalogEntry{
		ID:            id,
		Name:          name,
		Active:        true,
		RawDefinition: json.RawMessage(fmt.Sprintf(`{"id":%q,"name":%q,"active":true}`, id, name)),
	}
}

// InactiveEntry builds an inactive catalog entry.
func InactiveEntry(id, name string) core.CatalogEntry {
	e := Entry(id, name)
	e.Active = false
	e.RawDefinition = json.RawMessage(fmt.Sprintf(`{"id":%q,"name":%q,"active":false}`, id, name))
	return e
}

// WebhookEntry builds an active entry whose raw definition carries a
// webhook node with the given path, exercising target extraction.
func WebhookEntry(id, name, path string) core.CatalogEntry {
	raw := fmt.Sprintf(
		`{"id":%q,"name":%q,"active":true,"nodes":[{"type":"n8n-nodes-base.webhook","parameters":{"path":%q}}]}`,
		id, name, path,
	)
	e := Entry(id, name)
	e.RawDefinition = json.RawMessage(raw)
	return e
}
