package realtime

import "encoding/json"

// EventKind classifies a change event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is one change notification delivered on a channel key. Before/After
// are JSON snapshots of the affected record; either may be absent depending
// on the Kind.
type Event struct {
	Kind   EventKind       `json:"kind"`
	ID     string          `json:"id"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

const modulesResource = "modules"

// ModulesKey derives the channel key for a company's modules feed.
func ModulesKey(companyID string) string {
	return "company:" + companyID + ":" + modulesResource
}
