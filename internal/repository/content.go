package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"campuscms/internal/model"
	"campuscms/internal/workflow"
)

const contentColumns = `
	id, kind, status, title, body,
	summary, location, starts_at, expires_at, abstract, document_url, attachment_url,
	created_by, submitted_by, reviewed_by, review_notes, approved_at, published_at,
	views, created_at, updated_at
`

func scanContent(row pgx.Row) (model.Content, error) {
	var c model.Content
	err := row.Scan(
		&c.ID, &c.Kind, &c.Status, &c.Title, &c.Body,
		&c.Summary, &c.Location, &c.StartsAt, &c.ExpiresAt, &c.Abstract, &c.DocumentURL, &c.AttachmentURL,
		&c.CreatedBy, &c.SubmittedBy, &c.ReviewedBy, &c.ReviewNotes, &c.ApprovedAt, &c.PublishedAt,
		&c.Views, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *Store) CreateContent(ctx context.Context, c model.Content) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content (
			id, kind, status, title, body,
			summary, location, starts_at, expires_at, abstract, document_url, attachment_url,
			created_by, submitted_by, reviewed_by, review_notes, approved_at, published_at,
			views, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21
		)
	`,
		c.ID, c.Kind, c.Status, c.Title, c.Body,
		c.Summary, c.Location, c.StartsAt, c.ExpiresAt, c.Abstract, c.DocumentURL, c.AttachmentURL,
		c.CreatedBy, c.SubmittedBy, c.ReviewedBy, c.ReviewNotes, c.ApprovedAt, c.PublishedAt,
		c.Views, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *Store) GetContent(ctx context.Context, id string) (model.Content, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	return scanContent(row)
}

// GetPublicContent applies the public visibility predicate in the query itself:
// published only, and an unexpired expiry for notices. The predicate must stay
// equivalent to rbac.PubliclyVisible.
func (s *Store) GetPublicContent(ctx context.Context, id string, now time.Time) (model.Content, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contentColumns+`
		FROM content
		WHERE id = $1
		  AND status = $2
		  AND (expires_at IS NULL OR expires_at > $3)
	`, id, model.StatusPublished, now)
	return scanContent(row)
}

type ContentUpdate struct {
	Title         *string
	Body          *string
	Summary       *string
	Location      *string
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	Abstract      *string
	DocumentURL   *string
	AttachmentURL *string
}

func (s *Store) UpdateContent(ctx context.Context, id string, update ContentUpdate, now time.Time) (model.Content, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE content
		SET title          = COALESCE($1, title),
		    body           = COALESCE($2, body),
		    summary        = COALESCE($3, summary),
		    location       = COALESCE($4, location),
		    starts_at      = COALESCE($5, starts_at),
		    expires_at     = COALESCE($6, expires_at),
		    abstract       = COALESCE($7, abstract),
		    document_url   = COALESCE($8, document_url),
		    attachment_url = COALESCE($9, attachment_url),
		    updated_at     = $10
		WHERE id = $11
		RETURNING `+contentColumns,
		update.Title, update.Body, update.Summary, update.Location, update.StartsAt,
		update.ExpiresAt, update.Abstract, update.DocumentURL, update.AttachmentURL,
		now, id,
	)
	return scanContent(row)
}

// ApplyTransition writes a status change and every field it carries in one
// compare-and-set statement. If the row moved on since the caller read it, no
// write happens and ErrConflict comes back.
func (s *Store) ApplyTransition(ctx context.Context, id string, change workflow.Change) (model.Content, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE content
		SET status       = $1,
		    published_at = $2,
		    approved_at  = $3,
		    reviewed_by  = $4,
		    review_notes = $5,
		    updated_at   = $6
		WHERE id = $7 AND status = $8
		RETURNING `+contentColumns,
		change.To, change.PublishedAt, change.ApprovedAt, change.ReviewedBy, change.ReviewNotes,
		change.UpdatedAt, id, change.From,
	)
	c, err := scanContent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// disambiguate: row moved on (conflict), row gone (not found), or
		// the re-read itself failed
		_, getErr := s.GetContent(ctx, id)
		switch {
		case getErr == nil:
			return model.Content{}, ErrConflict
		case errors.Is(getErr, pgx.ErrNoRows):
			return model.Content{}, pgx.ErrNoRows
		default:
			return model.Content{}, getErr
		}
	}
	return c, err
}

func (s *Store) DeleteContent(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementViews bumps the public view counter and reports the value after
// the bump, so the response that triggered it can carry its own hit. Only
// public read paths call this; authenticated previews never count.
func (s *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := s.pool.QueryRow(ctx,
		`UPDATE content SET views = views + 1 WHERE id = $1 RETURNING views`, id,
	).Scan(&views)
	return views, err
}

type ContentFilter struct {
	Kind       *model.Kind
	Status     *model.Status
	CreatedBy  *string
	PublicOnly bool
	Now        time.Time
	Limit      int
	Offset     int
}

// ListContent returns one page plus the total count for the same predicate.
// With PublicOnly set, the predicate is the public visibility filter and the
// page is ordered by publication time.
func (s *Store) ListContent(ctx context.Context, filter ContentFilter) ([]model.Content, int, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.PublicOnly {
		args = append(args, model.StatusPublished)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
		args = append(args, filter.Now)
		where = append(where, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", len(args)))
	} else if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY updated_at DESC"
	if filter.PublicOnly {
		order = " ORDER BY published_at DESC"
	}

	args = append(args, filter.Limit)
	limitClause := fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	offsetClause := fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, `SELECT `+contentColumns+` FROM content`+clause+order+limitClause+offsetClause, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]model.Content, 0, filter.Limit)
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
