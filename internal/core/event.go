package core

import "time"

type EventKind string

const (
	EventFileSave   EventKind = "file_save"
	EventCommit     EventKind = "commit"
	EventChat       EventKind = "chat"
	EventCorrection EventKind = "correction"
	EventManual     EventKind = "manual"
)

// Event is a raw observation. Events are append-only; only Processed changes.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Diff      string            `json:"diff,omitempty"`
	File      string            `json:"file,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Processed bool              `json:"processed"`
}
