package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryType(t *testing.T) {
	tests := []struct {
		input string
		want  MemoryType
	}{
		{"decision", TypeDecision},
		{"BUG_FIX", TypeBugFix},
		{"bug-fix", TypeBugFix},
		{" Failed-Suggestion ", TypeFailedSuggestion},
		{"proven_pattern", TypeProvenPattern},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMemoryType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMemoryType("opinion")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMemoryType_JSON(t *testing.T) {
	b, err := json.Marshal(MemoryUnit{Type: TypeProvenPattern})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"proven_pattern"`)

	var u MemoryUnit
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Bug-Fix"}`), &u))
	assert.Equal(t, TypeBugFix, u.Type)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"nope"}`), &u))
}

func TestUnitPatch_Apply(t *testing.T) {
	u := MemoryUnit{Intent: "keep", Importance: 0.5, Tags: []string{"a"}}
	imp := -3.0
	tags := []string{"b", "c"}
	UnitPatch{Importance: &imp, Tags: &tags}.Apply(&u)

	assert.Equal(t, "keep", u.Intent)
	assert.Equal(t, 0.0, u.Importance)
	assert.Equal(t, []string{"b", "c"}, u.Tags)
	assert.True(t, UnitPatch{}.Empty())
}

func TestFileMatches(t *testing.T) {
	assert.True(t, FileMatches("src/db.go", "src/db.go"))
	assert.True(t, FileMatches("src/**/*.go", "src/store/db.go"))
	assert.True(t, FileMatches("db.go", "src/db.go"))
	assert.False(t, FileMatches("src/*.ts", "src/db.go"))
	assert.False(t, FileMatches("", "src/db.go"))
}

func TestUnitPatch_ImportanceResetsBase(t *testing.T) {
	u := MemoryUnit{Importance: 0.3, BaseImportance: 0.9}
	assert.Equal(t, 0.9, u.Base())

	imp := 0.45
	UnitPatch{Importance: &imp}.Apply(&u)
	assert.Equal(t, 0.45, u.Importance)
	assert.Equal(t, 0.45, u.Base())

	assert.Equal(t, 0.7, (&MemoryUnit{Importance: 0.7}).Base())
}
