package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityGate_Check(t *testing.T) {
	gate := NewQualityGate(DefaultOptions().Quality)

	tests := []struct {
		name string
		text string
		rule string
	}{
		{"too short", "fix it", RuleTooShort},
		{"too long", strings.Repeat("database ", 60), RuleTooLong},
		{"multi line", "line one here ok\nline two here\nline three here\nline four here", RuleMultiLine},
		{"url only", "https://example.com/docs/page", RuleURLOnly},
		{"json dump", `{"key": "value", "other": 1}`, RuleJSONDump},
		{"html", "<div>use the new connection pool</div>", RuleHTMLMarkup},
		{"markdown", "# Storage notes\n- one item\n- two items", RuleMarkdownDump},
		{"noise prefix", "error: connection refused by upstream", RuleNoisePrefix},
		{"all caps", "ALWAYS RUN THE MIGRATIONS FIRST", RuleAllCaps},
		{"repeated chars", "this is so broken!!!!!!", RuleRepeatedChars},
		{"generic", "fixed some bugs and updated code", RuleTooGeneric},
		{"accepted", "Use pgx instead of database/sql for Postgres access", ""},
		{"accepted with short caps", "Set GOFLAGS=-mod=mod in the CI image", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gate.Check(tt.text)
			if tt.rule == "" {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.rule, r.Rule)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestQualityGate_CheckSupplementary(t *testing.T) {
	gate := NewQualityGate(DefaultOptions().Quality)

	assert.Nil(t, gate.CheckSupplementary("action", ""))
	// Short secondary fields are fine.
	assert.Nil(t, gate.CheckSupplementary("action", "use pgx"))

	r := gate.CheckSupplementary("reason", `[1, 2, 3]`)
	require.NotNil(t, r)
	assert.Equal(t, RuleJSONDump, r.Rule)
	assert.True(t, strings.HasPrefix(r.Reason, "reason: "))
}
