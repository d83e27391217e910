package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
)

const unitColumns = `id, type, intent, action, reason, impact, outcome, related_files, tags,
	confidence, importance, base_importance, access_count, last_accessed, superseded_by, is_active,
	source_event_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (*core.MemoryUnit, error) {
	var (
		u                         core.MemoryUnit
		typ, files, tags          string
		lastAccessed, created, up int64
		active                    int
	)
	err := row.Scan(&u.ID, &typ, &u.Intent, &u.Action, &u.Reason, &u.Impact, &u.Outcome,
		&files, &tags, &u.Confidence, &u.Importance, &u.BaseImportance, &u.AccessCount, &lastAccessed,
		&u.SupersededBy, &active, &u.SourceEventID, &created, &up)
	if err != nil {
		return nil, err
	}

	t, err := core.ParseMemoryType(typ)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.ID, err)
	}
	u.Type = t
	u.IsActive = active == 1
	u.LastAccessed = fromMillis(lastAccessed)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(up)

	if err := json.Unmarshal([]byte(files), &u.RelatedFiles); err != nil {
		return nil, fmt.Errorf("unit %s: failed to decode related files: %w", u.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &u.Tags); err != nil {
		return nil, fmt.Errorf("unit %s: failed to decode tags: %w", u.ID, err)
	}
	return &u, nil
}

func (s *Store) queryUnits(ctx context.Context, op, query string, args ...any) ([]*core.MemoryUnit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var units []*core.MemoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return units, nil
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *Store) Add(ctx context.Context, candidate core.MemoryUnit) (*core.MemoryUnit, bool, error) {
	if !candidate.Type.Valid() {
		return nil, false, &core.ValidationError{Field: "type", Reason: "invalid memory type"}
	}
	if strings.TrimSpace(candidate.Intent) == "" {
		return nil, false, &core.ValidationError{Field: "intent", Reason: "must not be empty"}
	}

	var (
		unit    *core.MemoryUnit
		created bool
	)
	err := s.Atomic(ctx, func(repo core.Repository) error {
		tx := repo.(*Store)

		dup, err := tx.findDuplicate(ctx, &candidate)
		if err != nil {
			return err
		}
		if dup != nil {
			if err := tx.Touch(ctx, dup.ID); err != nil {
				return err
			}
			unit, err = tx.Get(ctx, dup.ID)
			return err
		}

		u := candidate
		u.ID = ""
		u.IsActive = true
		u.SupersededBy = ""
		if u.Outcome == "" {
			u.Outcome = core.OutcomeUnknown
		}
		if u.Confidence == 0 {
			u.Confidence = core.DefaultConfidence
		}
		if u.Importance == 0 {
			u.Importance = core.DefaultImportance
		}
		u.BaseImportance = u.Importance
		u.CreatedAt = s.now()
		u.UpdatedAt = u.CreatedAt
		u.LastAccessed = time.Time{}
		u.AccessCount = 0
		if err := tx.Insert(ctx, &u); err != nil {
			return err
		}
		unit, created = &u, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return unit, created, nil
}

// findDuplicate returns the active unit of the same type whose intent is the
// most similar to the candidate's, provided the overlap reaches the duplicate
// threshold and both intents share polarity. Action and reason do not count:
// two phrasings of the same intent are one memory.
func (s *Store) findDuplicate(ctx context.Context, candidate *core.MemoryUnit) (*core.MemoryUnit, error) {
	tokens := textsim.TokenSet(candidate.Intent)
	if len(tokens) == 0 {
		return nil, nil
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, intent FROM memory_units WHERE is_active = 1 AND type = ?`,
		candidate.Type.String())
	if err != nil {
		return nil, wrapErr("find duplicate", err)
	}
	defer rows.Close()

	var (
		bestID  string
		bestSim float64
	)
	for rows.Next() {
		var id, intent string
		if err := rows.Scan(&id, &intent); err != nil {
			return nil, wrapErr("find duplicate", err)
		}
		sim := textsim.Jaccard(tokens, textsim.TokenSet(intent))
		if sim < s.dupThreshold || sim <= bestSim {
			continue
		}
		if !textsim.SamePolarity(candidate.Intent, intent) {
			continue
		}
		bestID, bestSim = id, sim
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("find duplicate", err)
	}
	rows.Close()

	if bestID == "" {
		return nil, nil
	}
	return &core.MemoryUnit{ID: bestID}, nil
}

func (s *Store) Insert(ctx context.Context, u *core.MemoryUnit) error {
	if !u.Type.Valid() {
		return &core.ValidationError{Field: "type", Reason: "invalid memory type"}
	}
	if u.ID == "" {
		u.ID = s.newID()
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if u.Outcome == "" {
		u.Outcome = core.OutcomeUnknown
	}
	u.Confidence = core.Clamp01(u.Confidence)
	u.Importance = core.Clamp01(u.Importance)
	if u.BaseImportance == 0 {
		u.BaseImportance = u.Importance
	}
	u.BaseImportance = core.Clamp01(u.BaseImportance)

	_, err := s.q.ExecContext(ctx, `INSERT INTO memory_units (`+unitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Type.String(), u.Intent, u.Action, u.Reason, u.Impact, u.Outcome,
		encodeList(u.RelatedFiles), encodeList(u.Tags), u.Confidence, u.Importance,
		u.BaseImportance, u.AccessCount, toMillis(u.LastAccessed), u.SupersededBy, boolInt(u.IsActive),
		u.SourceEventID, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if isDuplicateError(err) {
		return &core.ValidationError{Field: "id", Reason: fmt.Sprintf("unit %s already exists", u.ID)}
	}
	if err != nil {
		return wrapErr("insert unit", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) Get(ctx context.Context, id string) (*core.MemoryUnit, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM memory_units WHERE id = ?`, id)
	u, err := scanUnit(row)
	if noRows(err) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnitNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("get unit", err)
	}
	return u, nil
}

const getManyChunk = 500

func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]*core.MemoryUnit, error) {
	out := make(map[string]*core.MemoryUnit, len(ids))
	for start := 0; start < len(ids); start += getManyChunk {
		end := min(start+getManyChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		units, err := s.queryUnits(ctx, "get units",
			`SELECT `+unitColumns+` FROM memory_units WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			out[u.ID] = u
		}
	}
	return out, nil
}

func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE memory_units SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		toMillis(s.now()), id)
	return wrapErr("touch unit", err)
}

func (s *Store) Update(ctx context.Context, id string, patch core.UnitPatch) (*core.MemoryUnit, error) {
	var updated *core.MemoryUnit
	err := s.Atomic(ctx, func(repo core.Repository) error {
		tx := repo.(*Store)
		u, err := tx.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				log.FromCtx(ctx).Debug().Str("id", id).Msg("update of unknown unit ignored")
				return nil
			}
			return err
		}
		if patch.Empty() {
			updated = u
			return nil
		}

		patch.Apply(u)
		u.UpdatedAt = s.now()
		_, err = tx.q.ExecContext(ctx, `UPDATE memory_units SET
			intent = ?, action = ?, reason = ?, impact = ?, outcome = ?,
			related_files = ?, tags = ?, confidence = ?, importance = ?, base_importance = ?,
			updated_at = ?
			WHERE id = ?`,
			u.Intent, u.Action, u.Reason, u.Impact, u.Outcome,
			encodeList(u.RelatedFiles), encodeList(u.Tags), u.Confidence, u.Importance,
			u.BaseImportance, toMillis(u.UpdatedAt), id)
		if err != nil {
			return wrapErr("update unit", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateImportance stores a derived importance. The base importance it was
// computed from is left untouched.
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE memory_units SET importance = ?, updated_at = ? WHERE id = ?`,
		core.Clamp01(importance), toMillis(s.now()), id)
	return wrapErr("update importance", err)
}

func (s *Store) Deactivate(ctx context.Context, id, supersededBy string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE memory_units SET is_active = 0, superseded_by = ?, updated_at = ? WHERE id = ?`,
		supersededBy, toMillis(s.now()), id)
	if err != nil {
		return wrapErr("deactivate unit", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnitNotFound, id)
	}
	s.afterCommit(func() { s.vectors.remove(id) })
	return nil
}

func (s *Store) GetActive(ctx context.Context, limit int) ([]*core.MemoryUnit, error) {
	return s.queryUnits(ctx, "get active units",
		`SELECT `+unitColumns+` FROM memory_units WHERE is_active = 1
		ORDER BY created_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
}

func (s *Store) GetByType(ctx context.Context, t core.MemoryType, limit int) ([]*core.MemoryUnit, error) {
	return s.queryUnits(ctx, "get units by type",
		`SELECT `+unitColumns+` FROM memory_units WHERE is_active = 1 AND type = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, t.String(), sqlLimit(limit))
}

// GetByFile returns active units whose related files refer to file, either
// exactly, by glob or by path suffix.
func (s *Store) GetByFile(ctx context.Context, file string, limit int) ([]*core.MemoryUnit, error) {
	units, err := s.queryUnits(ctx, "get units by file",
		`SELECT `+unitColumns+` FROM memory_units WHERE is_active = 1 AND related_files != '[]'
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}

	var out []*core.MemoryUnit
	for _, u := range units {
		if !core.TouchesFile(u.RelatedFiles, file) {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FindByTypeIntent(ctx context.Context, t core.MemoryType, intent string) (*core.MemoryUnit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM memory_units WHERE type = ? AND intent = ?
		ORDER BY created_at, id LIMIT 1`, t.String(), intent)
	u, err := scanUnit(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find unit", err)
	}
	return u, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*core.MemoryUnit, error) {
	return s.queryUnits(ctx, "list units",
		`SELECT `+unitColumns+` FROM memory_units ORDER BY created_at, id`)
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_units WHERE is_active = 1`).Scan(&n)
	return n, wrapErr("count active units", err)
}

func (s *Store) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_units`).Scan(&n)
	return n, wrapErr("count units", err)
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrUnitNotFound)
}

// prefixed qualifies every column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
