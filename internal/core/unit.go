package core

import (
	"fmt"
	"strings"
	"time"
)

// MemoryType is the closed set of memory unit kinds.
type MemoryType uint8

const (
	TypeDecision MemoryType = iota
	TypeCorrection
	TypeConvention
	TypeBugFix
	TypeInsight
	TypeDependency
	TypeProvenPattern
	TypeFailedSuggestion
	TypeConversation

	numMemoryTypes
)

var memoryTypeNames = [numMemoryTypes]string{
	TypeDecision:         "decision",
	TypeCorrection:       "correction",
	TypeConvention:       "convention",
	TypeBugFix:           "bug_fix",
	TypeInsight:          "insight",
	TypeDependency:       "dependency",
	TypeProvenPattern:    "proven_pattern",
	TypeFailedSuggestion: "failed_suggestion",
	TypeConversation:     "conversation",
}

// AllMemoryTypes returns every memory type in declaration order.
func AllMemoryTypes() []MemoryType {
	out := make([]MemoryType, 0, numMemoryTypes)
	for t := MemoryType(0); t < numMemoryTypes; t++ {
		out = append(out, t)
	}
	return out
}

func (t MemoryType) String() string {
	if t >= numMemoryTypes {
		return fmt.Sprintf("MemoryType(%d)", uint8(t))
	}
	return memoryTypeNames[t]
}

func (t MemoryType) Valid() bool {
	return t < numMemoryTypes
}

// ParseMemoryType accepts names case-insensitively, with '-' or '_' as separator.
func ParseMemoryType(s string) (MemoryType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for t, name := range memoryTypeNames {
		if name == norm {
			return MemoryType(t), nil
		}
	}
	return 0, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown memory type %q", s)}
}

func (t MemoryType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "invalid memory type"}
	}
	return []byte(t.String()), nil
}

func (t *MemoryType) UnmarshalText(b []byte) error {
	parsed, err := ParseMemoryType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const (
	OutcomeUnknown = "unknown"

	TagContradicted = "contradicted"
	TagConsolidated = "consolidated"
	TagEscalated    = "escalated"

	DefaultConfidence = 0.5
	DefaultImportance = 0.5
)

// MemoryUnit is the atomic stored memory.
type MemoryUnit struct {
	ID             string     `json:"id"`
	Type           MemoryType `json:"type"`
	Intent         string     `json:"intent"`
	Action         string     `json:"action"`
	Reason         string     `json:"reason,omitempty"`
	Impact         string     `json:"impact,omitempty"`
	Outcome        string     `json:"outcome"`
	RelatedFiles   []string   `json:"relatedFiles,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Confidence     float64    `json:"confidence"`
	Importance     float64    `json:"importance"`
	// BaseImportance is the importance set at creation or by an explicit
	// change. Decay derives Importance from it and never writes it.
	BaseImportance float64    `json:"baseImportance"`
	AccessCount    int        `json:"accessCount"`
	LastAccessed   time.Time  `json:"lastAccessed,omitzero"`
	SupersededBy   string     `json:"supersededBy,omitempty"`
	IsActive       bool       `json:"isActive"`
	SourceEventID  string     `json:"sourceEventId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Text is the content used for similarity and embedding.
func (u *MemoryUnit) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{u.Intent, u.Action, u.Reason} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func (u *MemoryUnit) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag if absent and reports whether it was added.
func (u *MemoryUnit) AddTag(tag string) bool {
	if u.HasTag(tag) {
		return false
	}
	u.Tags = append(u.Tags, tag)
	return true
}

// UnitPatch holds a partial update. Nil fields keep their prior values.
type UnitPatch struct {
	Intent       *string
	Action       *string
	Reason       *string
	Impact       *string
	Outcome      *string
	RelatedFiles *[]string
	Tags         *[]string
	Confidence   *float64
	Importance   *float64
}

func (p UnitPatch) Empty() bool {
	return p.Intent == nil && p.Action == nil && p.Reason == nil && p.Impact == nil &&
		p.Outcome == nil && p.RelatedFiles == nil && p.Tags == nil &&
		p.Confidence == nil && p.Importance == nil
}

// Apply copies set fields onto u, clamping scores to [0,1].
func (p UnitPatch) Apply(u *MemoryUnit) {
	if p.Intent != nil {
		u.Intent = *p.Intent
	}
	if p.Action != nil {
		u.Action = *p.Action
	}
	if p.Reason != nil {
		u.Reason = *p.Reason
	}
	if p.Impact != nil {
		u.Impact = *p.Impact
	}
	if p.Outcome != nil {
		u.Outcome = *p.Outcome
	}
	if p.RelatedFiles != nil {
		u.RelatedFiles = append([]string(nil), (*p.RelatedFiles)...)
	}
	if p.Tags != nil {
		u.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Confidence != nil {
		u.Confidence = Clamp01(*p.Confidence)
	}
	if p.Importance != nil {
		u.Importance = Clamp01(*p.Importance)
		u.BaseImportance = u.Importance
	}
}

// Base returns the importance decay starts from. Units built in memory
// without a base fall back to Importance.
func (u *MemoryUnit) Base() float64 {
	if u.BaseImportance > 0 {
		return u.BaseImportance
	}
	return u.Importance
}

func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScoredID is a unit id with a search score, higher is better.
type ScoredID struct {
	ID    string
	Score float64
}
