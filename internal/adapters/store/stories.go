package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/helix-collective/z88/internal/core"
)

const storyColumns = `id, owner_id, title, prompt, content, ritual_id, preset, word_count,
	quality_score, ethical_approval, harmony, prana, drishti, klesha, resilience, zoom,
	agent_contributions, tags, is_favorite, collection_id, series_id, chapter_number,
	created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*core.Story, error) {
	var (
		s                        core.Story
		quality                  int
		harmony, prana, drishti  int
		klesha, resilience, zoom int
		contributions, tags      string
		collectionID             sql.NullInt64
		seriesID                 sql.NullString
		deletedAt                sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Title, &s.Prompt, &s.Content, &s.RitualID, &s.Preset, &s.WordCount,
		&quality, &s.EthicalApproval, &harmony, &prana, &drishti, &klesha, &resilience, &zoom,
		&contributions, &tags, &s.IsFavorite, &collectionID, &seriesID, &s.ChapterNumber,
		&s.CreatedAt, &s.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	s.QualityScore = core.UnscaleFixed(quality, core.QualityScale)
	s.UCF = core.UCFState{
		Harmony:    core.UnscaleFixed(harmony, core.UCFScale),
		Prana:      core.UnscaleFixed(prana, core.UCFScale),
		Drishti:    core.UnscaleFixed(drishti, core.UCFScale),
		Klesha:     core.UnscaleFixed(klesha, core.UCFScale),
		Resilience: core.UnscaleFixed(resilience, core.UCFScale),
		Zoom:       core.UnscaleFixed(zoom, core.UCFScale),
	}
	if contributions != "" {
		if err := json.Unmarshal([]byte(contributions), &s.AgentContributions); err != nil {
			return nil, fmt.Errorf("decoding contributions of story %d: %w", s.ID, err)
		}
	}
	s.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of story %d: %w", s.ID, err)
		}
	}
	if collectionID.Valid {
		id := collectionID.Int64
		s.CollectionID = &id
	}
	s.SeriesID = seriesID.String
	if deletedAt.Valid {
		t := deletedAt.Time
		s.DeletedAt = &t
	}
	return &s, nil
}

func (s *Store) queryStories(ctx context.Context, query string, args ...any) ([]*core.Story, error) {
	var out []*core.Story
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			st, err := scanStory(rows)
			if err != nil {
				return err
			}
			out = append(out, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying stories: %w", err)
	}
	if out == nil {
		out = []*core.Story{}
	}
	return out, nil
}

func (s *Store) queryStory(ctx context.Context, id string, query string, args ...any) (*core.Story, error) {
	var st *core.Story
	err := s.withRetry(ctx, func() error {
		var err error
		st, err = scanStory(s.db.QueryRowContext(ctx, query, args...))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoryNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading story %s: %w", id, err)
	}
	return st, nil
}

// SaveRitual inserts the story, its trajectory and its transcripts in one
// transaction. The story's ID and timestamps are set on success.
func (s *Store) SaveRitual(ctx context.Context, story *core.Story, trajectory []core.TrajectoryPoint, outputs []core.AgentOutput) error {
	contributions, err := json.Marshal(story.AgentContributions)
	if err != nil {
		return fmt.Errorf("marshaling contributions: %w", err)
	}
	tags := NormalizeTags(story.Tags)
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}
	chapter := story.ChapterNumber
	if chapter < 1 {
		chapter = 1
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stories (
			owner_id, title, prompt, content, ritual_id, preset, word_count,
			quality_score, ethical_approval, harmony, prana, drishti, klesha, resilience, zoom,
			agent_contributions, tags, is_favorite, collection_id, series_id, chapter_number,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		story.OwnerID, story.Title, story.Prompt, story.Content, story.RitualID, story.Preset, story.WordCount,
		core.ScaleFixed(story.QualityScore, core.QualityScale), story.EthicalApproval,
		core.ScaleFixed(story.UCF.Harmony, core.UCFScale),
		core.ScaleFixed(story.UCF.Prana, core.UCFScale),
		core.ScaleFixed(story.UCF.Drishti, core.UCFScale),
		core.ScaleFixed(story.UCF.Klesha, core.UCFScale),
		core.ScaleFixed(story.UCF.Resilience, core.UCFScale),
		core.ScaleFixed(story.UCF.Zoom, core.UCFScale),
		string(contributions), string(tagsJSON), story.IsFavorite,
		nullableID(story.CollectionID), nullableString(story.SeriesID), chapter,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict(core.CodeDuplicateRitual,
				fmt.Sprintf("story for ritual %s already exists", story.RitualID)).WithCause(err)
		}
		return fmt.Errorf("inserting story: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading story id: %w", err)
	}

	for _, p := range trajectory {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ucf_states (ritual_id, step, harmony, prana, drishti, klesha, resilience, zoom, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			story.RitualID, p.Step,
			core.ScaleFixed(p.Harmony, core.UCFScale),
			core.ScaleFixed(p.Prana, core.UCFScale),
			core.ScaleFixed(p.Drishti, core.UCFScale),
			core.ScaleFixed(p.Klesha, core.UCFScale),
			core.ScaleFixed(p.Resilience, core.UCFScale),
			core.ScaleFixed(p.Zoom, core.UCFScale),
			p.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("inserting ucf state %d: %w", p.Step, err)
		}
	}

	for _, o := range outputs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_logs (ritual_id, agent_name, agent_symbol, role, provider, model, tokens, content, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			story.RitualID, o.Name, o.Symbol, o.Role, string(o.Provider), o.Model, o.Tokens, o.Content, o.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("inserting agent log %s: %w", o.AgentKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ritual: %w", err)
	}

	story.ID = id
	story.Tags = tags
	story.ChapterNumber = chapter
	story.CreatedAt = now
	story.UpdatedAt = now
	s.logger.Debug("ritual stored", "story_id", id, "ritual_id", story.RitualID,
		"points", len(trajectory), "logs", len(outputs))
	return nil
}

// GetStory loads a story by ID, including trashed ones.
func (s *Store) GetStory(ctx context.Context, id int64) (*core.Story, error) {
	return s.queryStory(ctx, strconv.FormatInt(id, 10),
		"SELECT "+storyColumns+" FROM stories WHERE id = ?", id)
}

// GetStoryByRitualID loads the story produced by a ritual.
func (s *Store) GetStoryByRitualID(ctx context.Context, ritualID string) (*core.Story, error) {
	return s.queryStory(ctx, ritualID,
		"SELECT "+storyColumns+" FROM stories WHERE ritual_id = ?", ritualID)
}

// ListStories returns an owner's live stories, newest first.
func (s *Store) ListStories(ctx context.Context, ownerID string, f core.StoryFilter) ([]*core.Story, error) {
	var (
		where = []string{"owner_id = ?", "deleted_at IS NULL"}
		args  = []any{ownerID}
	)
	if f.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.FavoritesOnly {
		where = append(where, "is_favorite = ?")
		args = append(args, true)
	}
	query := "SELECT " + storyColumns + " FROM stories WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}
	return s.queryStories(ctx, query, args...)
}

// storySource adapts stories to fuzzy matching over title and prompt.
type storySource []*core.Story

func (src storySource) String(i int) string { return src[i].Title + " " + src[i].Prompt }
func (src storySource) Len() int            { return len(src) }

// SearchStories ranks an owner's live stories against query by fuzzy
// match on title and prompt. An empty query matches nothing.
func (s *Store) SearchStories(ctx context.Context, ownerID, query string) ([]*core.Story, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*core.Story{}, nil
	}
	all, err := s.ListStories(ctx, ownerID, core.StoryFilter{})
	if err != nil {
		return nil, err
	}
	matches := fuzzy.FindFrom(query, storySource(all))
	out := make([]*core.Story, 0, len(matches))
	for _, m := range matches {
		out = append(out, all[m.Index])
	}
	return out, nil
}

// SeriesChapters returns a series' live chapters in order.
func (s *Store) SeriesChapters(ctx context.Context, seriesID string) ([]*core.Story, error) {
	return s.queryStories(ctx,
		"SELECT "+storyColumns+" FROM stories WHERE series_id = ? AND deleted_at IS NULL ORDER BY chapter_number, id",
		seriesID)
}

// SetSeries places a story in a series.
func (s *Store) SetSeries(ctx context.Context, id int64, seriesID string, chapter int) error {
	return s.update(ctx, id,
		"UPDATE stories SET series_id = ?, chapter_number = ?, updated_at = ? WHERE id = ?",
		nullableString(seriesID), chapter, s.now().UTC(), id)
}

// Trajectory returns a ritual's UCF points ordered by step.
func (s *Store) Trajectory(ctx context.Context, ritualID string) ([]core.TrajectoryPoint, error) {
	out := []core.TrajectoryPoint{}
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT step, harmony, prana, drishti, klesha, resilience, zoom, timestamp
			FROM ucf_states WHERE ritual_id = ? ORDER BY step, id`, ritualID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				p                        core.TrajectoryPoint
				harmony, prana, drishti  int
				klesha, resilience, zoom int
			)
			if err := rows.Scan(&p.Step, &harmony, &prana, &drishti, &klesha, &resilience, &zoom, &p.Timestamp); err != nil {
				return err
			}
			p.UCFState = core.UCFState{
				Harmony:    core.UnscaleFixed(harmony, core.UCFScale),
				Prana:      core.UnscaleFixed(prana, core.UCFScale),
				Drishti:    core.UnscaleFixed(drishti, core.UCFScale),
				Klesha:     core.UnscaleFixed(klesha, core.UCFScale),
				Resilience: core.UnscaleFixed(resilience, core.UCFScale),
				Zoom:       core.UnscaleFixed(zoom, core.UCFScale),
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("loading trajectory %s: %w", ritualID, err)
	}
	return out, nil
}

// AgentLogs returns a ritual's transcripts in the order they were written.
func (s *Store) AgentLogs(ctx context.Context, ritualID string) ([]core.AgentLog, error) {
	out := []core.AgentLog{}
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, ritual_id, agent_name, agent_symbol, role, provider, model, tokens, content, timestamp
			FROM agent_logs WHERE ritual_id = ? ORDER BY id`, ritualID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				l        core.AgentLog
				provider string
			)
			if err := rows.Scan(&l.ID, &l.RitualID, &l.AgentName, &l.AgentSymbol, &l.Role,
				&provider, &l.Model, &l.Tokens, &l.Content, &l.Timestamp); err != nil {
				return err
			}
			l.Provider = core.Provider(provider)
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("loading agent logs %s: %w", ritualID, err)
	}
	return out, nil
}

// update runs a single-row UPDATE and reports a missing row as not found.
func (s *Store) update(ctx context.Context, id int64, query string, args ...any) error {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("updating story %d: %w", id, err)
	}
	if n == 0 {
		return core.ErrStoryNotFound(strconv.FormatInt(id, 10))
	}
	return nil
}

// SoftDelete moves a live story to the trash.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	now := s.now().UTC()
	return s.update(ctx, id,
		"UPDATE stories SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		nullableTime(&now), now, id)
}

// Restore brings a trashed story back.
func (s *Store) Restore(ctx context.Context, id int64) error {
	return s.update(ctx, id,
		"UPDATE stories SET deleted_at = NULL, updated_at = ? WHERE id = ? AND deleted_at IS NOT NULL",
		s.now().UTC(), id)
}

// Purge removes a story with its trajectory and transcripts.
func (s *Store) Purge(ctx context.Context, id int64) error {
	story, err := s.GetStory(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		"DELETE FROM ucf_states WHERE ritual_id = ?",
		"DELETE FROM agent_logs WHERE ritual_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, story.RitualID); err != nil {
			return fmt.Errorf("purging story %d: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stories WHERE id = ?", id); err != nil {
		return fmt.Errorf("purging story %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("purging story %d: %w", id, err)
	}
	s.logger.Info("story purged", "story_id", id, "ritual_id", story.RitualID)
	return nil
}

// ListDeleted returns an owner's trashed stories, most recently deleted first.
func (s *Store) ListDeleted(ctx context.Context, ownerID string) ([]*core.Story, error) {
	return s.queryStories(ctx,
		"SELECT "+storyColumns+" FROM stories WHERE owner_id = ? AND deleted_at IS NOT NULL ORDER BY deleted_at DESC, id DESC",
		ownerID)
}

// SetFavorite marks or unmarks a live story.
func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.update(ctx, id,
		"UPDATE stories SET is_favorite = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		favorite, s.now().UTC(), id)
}

// NormalizeTags trims, lowercases, dedupes and sorts tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// UpdateTags replaces a live story's tags and returns the stored set.
func (s *Store) UpdateTags(ctx context.Context, id int64, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}
	if err := s.update(ctx, id,
		"UPDATE stories SET tags = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		string(data), s.now().UTC(), id); err != nil {
		return nil, err
	}
	return tags, nil
}

// StoriesByTag returns an owner's live stories carrying tag.
func (s *Store) StoriesByTag(ctx context.Context, ownerID, tag string) ([]*core.Story, error) {
	norm := NormalizeTags([]string{tag})
	if len(norm) == 0 {
		return []*core.Story{}, nil
	}
	tag = norm[0]
	needle, err := json.Marshal(tag)
	if err != nil {
		return nil, fmt.Errorf("marshaling tag: %w", err)
	}
	candidates, err := s.queryStories(ctx,
		"SELECT "+storyColumns+" FROM stories WHERE owner_id = ? AND deleted_at IS NULL AND tags LIKE ? ORDER BY created_at DESC, id DESC",
		ownerID, "%"+string(needle)+"%")
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, st := range candidates {
		for _, t := range st.Tags {
			if t == tag {
				out = append(out, st)
				break
			}
		}
	}
	return out, nil
}

// AllTags returns the sorted union of tags on an owner's live stories.
func (s *Store) AllTags(ctx context.Context, ownerID string) ([]string, error) {
	var all []string
	err := s.withRetry(ctx, func() error {
		all = all[:0]
		rows, err := s.db.QueryContext(ctx,
			"SELECT tags FROM stories WHERE owner_id = ? AND deleted_at IS NULL", ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			var tags []string
			if err := json.Unmarshal([]byte(raw), &tags); err != nil {
				return fmt.Errorf("decoding tags: %w", err)
			}
			all = append(all, tags...)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return NormalizeTags(all), nil
}
