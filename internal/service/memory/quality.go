package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/conv"
)

const (
	RuleTooShort      = "too_short"
	RuleTooLong       = "too_long"
	RuleMultiLine     = "multi_line"
	RuleURLOnly       = "url_only"
	RuleJSONDump      = "json_dump"
	RuleHTMLMarkup    = "html_markup"
	RuleMarkdownDump  = "markdown_dump"
	RuleNoisePrefix   = "noise_prefix"
	RuleAllCaps       = "all_caps"
	RuleRepeatedChars = "repeated_chars"
	RuleTooGeneric    = "too_generic"
)

const (
	repeatRun      = 5
	minCapsLetters = 10
)

var urlOnly = regexp.MustCompile(`^(?:(?:https?|ftp)://\S+|www\.\S+)(?:\s+(?:(?:https?|ftp)://\S+|www\.\S+))*$`)

// noisePrefixes mark pasted tool output rather than knowledge.
var noisePrefixes = []string{
	"error:", "warning:", "warn:", "info:", "debug:", "trace:", "fatal:",
	"panic:", "goroutine ", "traceback", "exception in thread", "npm err!",
	"$ ", "> ", ">>> ", "at java.", "at org.", "at com.",
	"wip", "todo:", "fixme:", "tmp:", "test:", "lorem ipsum",
}

// genericWords carry no project specific knowledge on their own.
var genericWords = map[string]struct{}{
	"fixed": {}, "fix": {}, "fixes": {}, "bug": {}, "bugs": {}, "issue": {}, "issues": {},
	"updated": {}, "update": {}, "updates": {}, "code": {}, "changes": {}, "changed": {},
	"change": {}, "stuff": {}, "things": {}, "thing": {}, "minor": {}, "small": {},
	"refactor": {}, "refactored": {}, "cleanup": {}, "cleaned": {}, "improvements": {},
	"improved": {}, "various": {}, "work": {}, "works": {}, "working": {}, "progress": {},
	"again": {}, "today": {}, "important": {}, "remember": {}, "note": {}, "self": {},
	"thanks": {}, "okay": {}, "misc": {}, "tweak": {}, "tweaks": {}, "made": {},
	"make": {}, "some": {}, "something": {}, "anything": {}, "everything": {},
	"good": {}, "better": {}, "nice": {}, "great": {}, "problem": {}, "problems": {},
	"solved": {}, "resolved": {}, "done": {}, "finished": {}, "tried": {}, "try": {},
	"file": {}, "files": {}, "function": {}, "method": {}, "project": {}, "yes": {},
}

type qualityRule func(text string) *Rejection

// QualityGate rejects low-value writes before they reach the store.
// Rules run in order and the first failure wins.
type QualityGate struct {
	opts  QualityOptions
	rules []qualityRule
}

func NewQualityGate(opts QualityOptions) *QualityGate {
	g := &QualityGate{opts: opts}
	g.rules = []qualityRule{
		g.checkLength,
		g.checkLines,
		checkURLOnly,
		checkJSON,
		checkHTML,
		checkMarkdown,
		checkNoisePrefix,
		checkAllCaps,
		checkRepeatedChars,
		checkGeneric,
	}
	return g
}

// Check evaluates the primary text of a write. A nil result means accepted.
func (g *QualityGate) Check(text string) *Rejection {
	text = strings.TrimSpace(text)
	for _, rule := range g.rules {
		if r := rule(text); r != nil {
			rejectionsTotal.WithLabelValues(r.Rule).Inc()
			return r
		}
	}
	return nil
}

// CheckSupplementary applies the structural rules to secondary fields
// (action, reason) which may be long but must not be dumps.
func (g *QualityGate) CheckSupplementary(field, text string) *Rejection {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, rule := range []qualityRule{g.checkMaxLength, g.checkLines, checkJSON, checkHTML, checkMarkdown} {
		if r := rule(text); r != nil {
			r.Reason = field + ": " + r.Reason
			rejectionsTotal.WithLabelValues(r.Rule).Inc()
			return r
		}
	}
	return nil
}

func (g *QualityGate) checkLength(text string) *Rejection {
	if n := utf8.RuneCountInString(text); n < g.opts.MinLength {
		return &Rejection{Rule: RuleTooShort, Reason: fmt.Sprintf("%d characters, need at least %d", n, g.opts.MinLength)}
	}
	return g.checkMaxLength(text)
}

func (g *QualityGate) checkMaxLength(text string) *Rejection {
	if n := utf8.RuneCountInString(text); n > g.opts.MaxLength {
		return &Rejection{Rule: RuleTooLong, Reason: fmt.Sprintf("%d characters, limit is %d", n, g.opts.MaxLength)}
	}
	return nil
}

func (g *QualityGate) checkLines(text string) *Rejection {
	lines := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	if lines > g.opts.MaxLines {
		return &Rejection{Rule: RuleMultiLine, Reason: fmt.Sprintf("%d lines, limit is %d", lines, g.opts.MaxLines)}
	}
	return nil
}

func checkURLOnly(text string) *Rejection {
	if urlOnly.MatchString(text) {
		return &Rejection{Rule: RuleURLOnly, Reason: "contains only links"}
	}
	return nil
}

func checkJSON(text string) *Rejection {
	if (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")) && json.Valid([]byte(text)) {
		return &Rejection{Rule: RuleJSONDump, Reason: "raw JSON payload"}
	}
	return nil
}

func checkHTML(text string) *Rejection {
	if conv.HasHTML(text) {
		return &Rejection{Rule: RuleHTMLMarkup, Reason: "contains HTML markup"}
	}
	return nil
}

func checkMarkdown(text string) *Rejection {
	if conv.IsMarkdownDump(text) {
		return &Rejection{Rule: RuleMarkdownDump, Reason: "structured markdown document"}
	}
	return nil
}

func checkNoisePrefix(text string) *Rejection {
	lower := strings.ToLower(text)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(lower, p) {
			return &Rejection{Rule: RuleNoisePrefix, Reason: fmt.Sprintf("looks like tool output (%q)", strings.TrimSpace(p))}
		}
	}
	return nil
}

func checkAllCaps(text string) *Rejection {
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsLower(r) {
			return nil
		}
		letters++
	}
	if letters >= minCapsLetters {
		return &Rejection{Rule: RuleAllCaps, Reason: "written entirely in capitals"}
	}
	return nil
}

// checkRepeatedChars finds runs like "!!!!!" or "aaaaa". RE2 has no
// backreferences, so the scan is manual.
func checkRepeatedChars(text string) *Rejection {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= repeatRun {
				return &Rejection{Rule: RuleRepeatedChars, Reason: fmt.Sprintf("character %q repeated %d+ times", r, repeatRun)}
			}
			continue
		}
		prev, run = r, 1
	}
	return nil
}

func checkGeneric(text string) *Rejection {
	tokens := textsim.Tokens(text)
	specific := 0
	for _, t := range tokens {
		if _, ok := genericWords[t]; !ok {
			specific++
		}
	}
	if specific == 0 {
		return &Rejection{Rule: RuleTooGeneric, Reason: "no project specific content"}
	}
	return nil
}
