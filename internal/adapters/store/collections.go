package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/helix-collective/z88/internal/core"
)

func validateCollection(c *core.Collection) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return core.ErrValidation(core.CodeInvalidCollection, "collection name is required")
	}
	return nil
}

// CreateCollection inserts c and sets its ID and timestamps.
func (s *Store) CreateCollection(ctx context.Context, c *core.Collection) error {
	if err := validateCollection(c); err != nil {
		return err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (owner_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.OwnerID, c.Name, c.Description, now, now)
	if err != nil {
		return fmt.Errorf("inserting collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading collection id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func scanCollection(row rowScanner) (*core.Collection, error) {
	var c core.Collection
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCollection loads a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id int64) (*core.Collection, error) {
	var c *core.Collection
	err := s.withRetry(ctx, func() error {
		var err error
		c, err = scanCollection(s.db.QueryRowContext(ctx,
			"SELECT id, owner_id, name, description, created_at, updated_at FROM collections WHERE id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrCollectionNotFound(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("loading collection %d: %w", id, err)
	}
	return c, nil
}

// ListCollections returns an owner's collections by name.
func (s *Store) ListCollections(ctx context.Context, ownerID string) ([]*core.Collection, error) {
	out := []*core.Collection{}
	err := s.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, owner_id, name, description, created_at, updated_at FROM collections WHERE owner_id = ? ORDER BY name, id",
			ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCollection(rows)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return out, nil
}

// UpdateCollection renames or redescribes c.
func (s *Store) UpdateCollection(ctx context.Context, c *core.Collection) error {
	if err := validateCollection(c); err != nil {
		return err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE collections SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		c.Name, c.Description, now, c.ID)
	if err != nil {
		return fmt.Errorf("updating collection %d: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("updating collection %d: %w", c.ID, err)
	} else if n == 0 {
		return core.ErrCollectionNotFound(strconv.FormatInt(c.ID, 10))
	}
	c.UpdatedAt = now
	return nil
}

// DeleteCollection detaches the collection's stories and removes it.
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE stories SET collection_id = NULL, updated_at = ? WHERE collection_id = ?",
		s.now().UTC(), id); err != nil {
		return fmt.Errorf("detaching stories from collection %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting collection %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("deleting collection %d: %w", id, err)
	} else if n == 0 {
		return core.ErrCollectionNotFound(strconv.FormatInt(id, 10))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("deleting collection %d: %w", id, err)
	}
	return nil
}

// MoveToCollection files a live story under collectionID, or removes it
// from its collection when collectionID is nil.
func (s *Store) MoveToCollection(ctx context.Context, storyID int64, collectionID *int64) error {
	if collectionID != nil {
		if _, err := s.GetCollection(ctx, *collectionID); err != nil {
			return err
		}
	}
	return s.update(ctx, storyID,
		"UPDATE stories SET collection_id = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		nullableID(collectionID), s.now().UTC(), storyID)
}

// StoriesInCollection returns a collection's live stories, newest first.
func (s *Store) StoriesInCollection(ctx context.Context, collectionID int64) ([]*core.Story, error) {
	return s.queryStories(ctx,
		"SELECT "+storyColumns+" FROM stories WHERE collection_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, id DESC",
		collectionID)
}
