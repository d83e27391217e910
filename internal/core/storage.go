package core

import (
	"context"
	"time"
)

type UnitRepository interface {
	// Add stores candidate unless an active near-duplicate of the same type
	// exists, in which case the existing unit is touched and returned.
	Add(ctx context.Context, candidate MemoryUnit) (unit *MemoryUnit, created bool, err error)
	// Insert writes u as-is, without duplicate detection.
	Insert(ctx context.Context, u *MemoryUnit) error
	Get(ctx context.Context, id string) (*MemoryUnit, error)
	GetMany(ctx context.Context, ids []string) (map[string]*MemoryUnit, error)
	// Update applies patch to id. An unknown id yields (nil, nil).
	Update(ctx context.Context, id string, patch UnitPatch) (*MemoryUnit, error)
	UpdateImportance(ctx context.Context, id string, importance float64) error
	Touch(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id, supersededBy string) error
	GetActive(ctx context.Context, limit int) ([]*MemoryUnit, error)
	GetByType(ctx context.Context, t MemoryType, limit int) ([]*MemoryUnit, error)
	GetByFile(ctx context.Context, file string, limit int) ([]*MemoryUnit, error)
	FindByTypeIntent(ctx context.Context, t MemoryType, intent string) (*MemoryUnit, error)
	ListAll(ctx context.Context) ([]*MemoryUnit, error)
	CountActive(ctx context.Context) (int, error)
	CountAll(ctx context.Context) (int, error)
	SearchFTS(ctx context.Context, query string, limit int) ([]ScoredID, error)
}

type VectorRepository interface {
	StoreVector(ctx context.Context, id string, vector []float32, model string) error
	SearchVector(ctx context.Context, vector []float32, limit int) ([]ScoredID, error)
	UnitsMissingVectors(ctx context.Context, limit int) ([]*MemoryUnit, error)
}

type EdgeRepository interface {
	AddEdge(ctx context.Context, e Edge) error
	GetEdgesFrom(ctx context.Context, id string) ([]Edge, error)
	GetEdgesTo(ctx context.Context, id string) ([]Edge, error)
	// GetRelated walks edges in both directions up to maxHops.
	GetRelated(ctx context.Context, id string, maxHops, limit int) ([]RelatedUnit, error)
}

type EventRepository interface {
	RecordEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListUnprocessedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkEventProcessed(ctx context.Context, id string) error
}

// Repository is the full memory store. Atomic runs fn inside one
// transaction; nested calls reuse the outer transaction.
type Repository interface {
	UnitRepository
	VectorRepository
	EdgeRepository
	EventRepository
	Atomic(ctx context.Context, fn func(Repository) error) error
	Checkpoint(ctx context.Context, vacuum bool) error
}

// Clock is injected where tests need to control time.
type Clock func() time.Time
