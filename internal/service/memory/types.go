package memory

import (
	"strings"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
)

// StoreParams is the caller-facing write request.
type StoreParams struct {
	Type          string   `json:"type" validate:"required"`
	Intent        string   `json:"intent" validate:"required"`
	Action        string   `json:"action,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Impact        string   `json:"impact,omitempty"`
	Outcome       string   `json:"outcome,omitempty" validate:"omitempty,max=64"`
	RelatedFiles  []string `json:"relatedFiles,omitempty" validate:"omitempty,max=64,dive,required"`
	Tags          []string `json:"tags,omitempty" validate:"omitempty,max=32,dive,required,max=64"`
	Confidence    *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Importance    *float64 `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
	SourceEventID string   `json:"sourceEventId,omitempty"`
}

// Rejection explains why the quality gate refused a write.
type Rejection struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

func (r Rejection) String() string {
	return r.Rule + ": " + r.Reason
}

type StoreResult struct {
	Unit *core.MemoryUnit `json:"unit,omitempty"`
	// Created is false when the write merged into an existing duplicate.
	Created   bool       `json:"created"`
	Rejection *Rejection `json:"rejection,omitempty"`
	// Contradicted lists the ids of older units demoted by this write.
	Contradicted []string `json:"contradicted,omitempty"`
}

func (r StoreResult) Rejected() bool {
	return r.Rejection != nil
}

// TaskContext describes what the developer is doing while recalling.
type TaskContext string

const (
	TaskDebugging TaskContext = "debugging"
	TaskCoding    TaskContext = "coding"
	TaskReviewing TaskContext = "reviewing"
	TaskExploring TaskContext = "exploring"
	TaskChatting  TaskContext = "chatting"
)

func ParseTaskContext(s string) (TaskContext, bool) {
	switch tc := TaskContext(strings.ToLower(strings.TrimSpace(s))); tc {
	case TaskDebugging, TaskCoding, TaskReviewing, TaskExploring, TaskChatting:
		return tc, true
	}
	return "", false
}

type RecallQuery struct {
	Query       string
	CurrentFile string
	// Filters applied after fusion.
	Types         []core.MemoryType
	MinImportance float64
	Since         time.Time
	File          string

	Limit int
	// Task overrides keyword based task inference when set.
	Task TaskContext
}

type RecallResult struct {
	Unit        *core.MemoryUnit `json:"unit"`
	Score       float64          `json:"score"`
	MatchMethod string           `json:"matchMethod"`
}

const (
	MethodVector  = "vector"
	MethodKeyword = "keyword"
	MethodFile    = "file"
	MethodGraph   = "graph"
)
