package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/conv"
	"github.com/sandevgo/mnemo/pkg/log"
)

type NoteKind string

const (
	NoteTopic         NoteKind = "topic"
	NoteDecision      NoteKind = "decision"
	NoteFile          NoteKind = "file"
	NoteFailedAttempt NoteKind = "failed_attempt"
	NoteGotcha        NoteKind = "gotcha"
)

const (
	sessionTag       = "session"
	sessionTopTopics = 5
	maxSessionItems  = 20
)

// Session aggregates what happened during one assistant session. It lives
// only in memory and is flushed into a single conversation unit by
// EndSession.
type Session struct {
	ID        string
	StartedAt time.Time

	mu        sync.Mutex
	ended     bool
	topics    map[string]int
	decisions []string
	files     []string
	failed    []string
	gotchas   []string
}

func (s *Service) BeginSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		topics:    make(map[string]int),
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" || len(list) >= maxSessionItems {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Feed records one note. Notes after End are ignored.
func (ss *Session) Feed(kind NoteKind, text string) {
	if kind == NoteFile {
		text = strings.TrimSpace(text)
	} else {
		text = conv.StripMarkup(text)
	}
	if text == "" {
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.ended {
		return
	}

	switch kind {
	case NoteTopic:
		for _, t := range textsim.Tokens(text) {
			ss.topics[t]++
		}
	case NoteDecision:
		ss.decisions = appendUnique(ss.decisions, text)
	case NoteFile:
		ss.files = appendUnique(ss.files, text)
	case NoteFailedAttempt:
		ss.failed = appendUnique(ss.failed, text)
	case NoteGotcha:
		ss.gotchas = appendUnique(ss.gotchas, text)
	}
}

// FeedEvent maps an observed event onto session notes.
func (ss *Session) FeedEvent(e *core.Event) {
	if e.File != "" {
		ss.Feed(NoteFile, e.File)
	}
	for _, f := range strings.Split(e.Metadata[metaFiles], ",") {
		ss.Feed(NoteFile, strings.TrimSpace(f))
	}
	switch e.Kind {
	case core.EventCommit:
		ss.Feed(NoteDecision, firstLine(e.Content))
		ss.Feed(NoteTopic, e.Content)
	case core.EventCorrection:
		ss.Feed(NoteGotcha, firstLine(e.Content))
	case core.EventChat, core.EventManual:
		ss.Feed(NoteTopic, e.Content)
	}
}

func (ss *Session) empty() bool {
	return len(ss.topics) == 0 && len(ss.decisions) == 0 && len(ss.files) == 0 &&
		len(ss.failed) == 0 && len(ss.gotchas) == 0
}

func (ss *Session) topTopics(n int) []string {
	out := make([]string, 0, len(ss.topics))
	for t := range ss.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if ss.topics[out[i]] != ss.topics[out[j]] {
			return ss.topics[out[i]] > ss.topics[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// summary renders the aggregate as StoreParams bounded by maxLen.
func (ss *Session) summary(maxLen int) StoreParams {
	topics := ss.topTopics(sessionTopTopics)
	subject := "general work"
	if len(topics) > 0 {
		subject = strings.Join(topics, ", ")
	}
	intent := fmt.Sprintf("Session on %s: %d decisions, %d files touched", subject, len(ss.decisions), len(ss.files))

	var reason []string
	if len(ss.failed) > 0 {
		reason = append(reason, "Failed: "+strings.Join(ss.failed, "; "))
	}
	if len(ss.gotchas) > 0 {
		reason = append(reason, "Gotchas: "+strings.Join(ss.gotchas, "; "))
	}

	return StoreParams{
		Type:         core.TypeConversation.String(),
		Intent:       truncate(intent, maxLen),
		Action:       truncate(strings.Join(ss.decisions, "; "), maxLen),
		Reason:       truncate(strings.Join(reason, " "), maxLen),
		RelatedFiles: append([]string(nil), ss.files...),
		Tags:         []string{sessionTag},
	}
}

// EndSession flushes sess into one conversation unit and discards it. An
// empty session stores nothing.
func (s *Service) EndSession(ctx context.Context, sess *Session) (StoreResult, error) {
	sess.mu.Lock()
	if sess.ended {
		sess.mu.Unlock()
		return StoreResult{}, &core.ValidationError{Field: "session", Reason: "already ended"}
	}
	sess.ended = true
	empty := sess.empty()
	params := sess.summary(s.opts.Quality.MaxLength)
	sess.topics, sess.decisions, sess.files, sess.failed, sess.gotchas = nil, nil, nil, nil, nil
	sess.mu.Unlock()

	if empty {
		return StoreResult{}, nil
	}

	res, err := s.Store(ctx, params)
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to flush session %s: %w", sess.ID, err)
	}
	if res.Rejected() {
		log.FromCtx(ctx).Debug().Str("session", sess.ID).Str("rule", res.Rejection.Rule).Msg("session summary rejected")
	}
	return res, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
