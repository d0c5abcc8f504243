package core

import (
	"context"
	"encoding/json"
)

// CapabilityType is the closed set of semantic categories an external
// automation workflow can be classified into. Every discovered handle is
// assigned exactly one type; workflows matching no classification rule are
// dropped from the registry index rather than defaulted.
type CapabilityType string

const (
	// TypeDataAnalysis covers analytics, insight and metrics workflows.
	TypeDataAnalysis CapabilityType = "data-analysis"
	// TypeDocumentProcessing covers extraction and upload pipelines.
	TypeDocumentProcessing CapabilityType = "document-processing"
	// TypeTaskManagement covers task/project organization workflows.
	TypeTaskManagement CapabilityType = "task-management"
	// TypeApproval covers review and authorization workflows.
	TypeApproval CapabilityType = "approval"
	// TypeReportGeneration covers report and summary generation workflows.
	TypeReportGeneration CapabilityType = "report-generation"
	// TypeHomeAutomation covers home automation advisor workflows.
	TypeHomeAutomation CapabilityType = "home-automation"
	// TypeUnclassified marks a handle that matched no rule. Handles with
	// this type never appear in the registry lookup index.
	TypeUnclassified CapabilityType = "unclassified"
)

// CapabilityTypes returns every routable capability type (excludes
// TypeUnclassified). The slice is freshly allocated on each call.
func CapabilityTypes() []CapabilityType {
	return []CapabilityType{
		TypeDataAnalysis,
		TypeDocumentProcessing,
		TypeTaskManagement,
		TypeApproval,
		TypeReportGeneration,
		TypeHomeAutomation,
	}
}

// Valid reports whether t is a member of the closed routable set.
func (t CapabilityType) Valid() bool {
	switch t {
	case TypeDataAnalysis, TypeDocumentProcessing, TypeTaskManagement,
		TypeApproval, TypeReportGeneration, TypeHomeAutomation:
		return true
	}
	return false
}

// CapabilityHandle is one externally reachable automation unit after
// classification. Handles are immutable within a cache epoch; a registry
// refresh discards and rebuilds them wholesale.
type CapabilityHandle struct {
	// ID is the opaque identifier assigned by the external catalog.
	ID string `json:"id"`
	// Name is the human readable workflow name.
	Name string `json:"name"`
	// Active indicates whether the external workflow accepts invocations.
	Active bool `json:"active"`
	// Type is the classification result for this handle.
	Type CapabilityType `json:"type"`
	// Target is the resolved webhook address used for invocation.
	Target string `json:"target"`
}

// CatalogEntry is a raw row from the external workflow catalog, prior to
// classification. RawDefinition carries the provider's workflow document
// (node graph, webhook descriptors) and is parsed tolerantly.
type CatalogEntry struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Active        bool            `json:"active"`
	Description   string          `json:"description,omitempty"`
	RawDefinition json.RawMessage `json:"raw_definition,omitempty"`
}

// Catalog fetches the full external workflow catalog. Implementations talk
// to the automation provider; limit <= 0 requests the provider default.
//
// Callers must tolerate errors by degrading to a previously cached snapshot:
// a catalog outage never surfaces to an in-flight conversation.
type Catalog interface {
	List(ctx context.Context, limit int) ([]CatalogEntry, error)
}

// Registry discovers, classifies and caches capability handles.
type Registry interface {
	// Refresh returns the capability index, re-fetching the external
	// catalog when the cached snapshot is older than the TTL or force is
	// true. On fetch failure the stale snapshot is returned, never an error.
	Refresh(ctx context.Context, force bool) map[CapabilityType][]CapabilityHandle

	// RegisterHandle pins an external workflow id to a capability type,
	// overriding automatic classification on subsequent refreshes.
	RegisterHandle(t CapabilityType, externalID string)
}

// FirstActiveHandle returns the first active handle for t in the given
// index, or false when the type has no active handle.
func FirstActiveHandle(index map[CapabilityType][]CapabilityHandle, t CapabilityType) (CapabilityHandle, bool) {
	for _, h := range index[t] {
		if h.Active {
			return h, true
		}
	}
	return CapabilityHandle{}, false
}
