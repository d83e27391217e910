package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sourcegraph/go-diff/diff"
)

const (
	metaFiles  = "files"
	metaReason = "reason"
)

var eventKinds = map[core.EventKind]struct{}{
	core.EventFileSave:   {},
	core.EventCommit:     {},
	core.EventChat:       {},
	core.EventCorrection: {},
	core.EventManual:     {},
}

// Observe records a raw event. Files touched by a unified diff are stored in
// the "files" metadata entry. When sess is non-nil the event also feeds it.
func (s *Service) Observe(ctx context.Context, sess *Session, e core.Event) (*core.Event, error) {
	if _, ok := eventKinds[e.Kind]; !ok {
		return nil, &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown event kind %q", e.Kind)}
	}
	if strings.TrimSpace(e.Content) == "" && e.Diff == "" && e.File == "" {
		return nil, &core.ValidationError{Field: "content", Reason: "event is empty"}
	}

	if e.Diff != "" {
		files, err := DiffFiles(e.Diff)
		if err != nil {
			return nil, &core.ValidationError{Field: "diff", Reason: err.Error()}
		}
		if len(files) > 0 {
			meta := make(map[string]string, len(e.Metadata)+1)
			for k, v := range e.Metadata {
				meta[k] = v
			}
			meta[metaFiles] = strings.Join(files, ",")
			e.Metadata = meta
		}
	}

	ev := e
	if err := s.withRetry(ctx, func() error {
		return s.repo.RecordEvent(ctx, &ev)
	}); err != nil {
		return nil, err
	}

	if sess != nil {
		sess.FeedEvent(&ev)
	}
	return &ev, nil
}

// DiffFiles lists the paths changed by a unified diff, sorted. Deleted
// files are reported under their old name.
func DiffFiles(patch string) ([]string, error) {
	fds, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	seen := make(map[string]struct{}, len(fds))
	var files []string
	for _, fd := range fds {
		name := cleanDiffPath(fd.NewName)
		if name == "" {
			name = cleanDiffPath(fd.OrigName)
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func cleanDiffPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

func isValidation(err error) bool {
	var ve *core.ValidationError
	return errors.As(err, &ve)
}
