// Package workflow is the publication state machine shared by all content
// kinds: draft -> pending -> published -> archived, with archived terminal.
// Role checks live in rbac; this package only answers whether a transition is
// legal from the current state and which fields it writes.
package workflow

import (
	"errors"
	"strings"
	"time"

	"campuscms/internal/model"
)

var (
	ErrInvalidTransition   = errors.New("illegal status transition")
	ErrReviewNotesRequired = errors.New("rejection requires review notes")
)

// Change is the full set of fields a transition writes. The repository applies
// it as one update so a reader can never observe the status without its
// timestamps.
type Change struct {
	From        model.Status
	To          model.Status
	PublishedAt *time.Time
	ApprovedAt  *time.Time
	ReviewedBy  *string
	ReviewNotes *string
	UpdatedAt   time.Time
}

// Submit moves the author's draft into the review queue.
func Submit(c model.Content, now time.Time) (Change, error) {
	if c.Status != model.StatusDraft {
		return Change{}, ErrInvalidTransition
	}
	return Change{
		From:      model.StatusDraft,
		To:        model.StatusPending,
		UpdatedAt: now,
	}, nil
}

// Approve publishes a pending record. published_at (and approved_at for
// research papers) is set on the first publication only and never moves again.
func Approve(c model.Content, reviewerID, notes string, now time.Time) (Change, error) {
	if c.Status != model.StatusPending {
		return Change{}, ErrInvalidTransition
	}
	change := Change{
		From:       model.StatusPending,
		To:         model.StatusPublished,
		ReviewedBy: &reviewerID,
		UpdatedAt:  now,
	}
	if c.PublishedAt == nil {
		change.PublishedAt = &now
	} else {
		change.PublishedAt = c.PublishedAt
	}
	if c.Kind == model.KindPaper {
		if c.ApprovedAt == nil {
			change.ApprovedAt = &now
		} else {
			change.ApprovedAt = c.ApprovedAt
		}
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		change.ReviewNotes = &notes
	} else {
		change.ReviewNotes = c.ReviewNotes
	}
	return change, nil
}

// Reject archives a pending record. A reason is mandatory; rejecting without
// one is a validation failure, not a silent archive.
func Reject(c model.Content, reviewerID, notes string, now time.Time) (Change, error) {
	if notes = strings.TrimSpace(notes); notes == "" {
		return Change{}, ErrReviewNotesRequired
	}
	if c.Status != model.StatusPending {
		return Change{}, ErrInvalidTransition
	}
	return Change{
		From:        model.StatusPending,
		To:          model.StatusArchived,
		ReviewedBy:  &reviewerID,
		ReviewNotes: &notes,
		PublishedAt: c.PublishedAt,
		ApprovedAt:  c.ApprovedAt,
		UpdatedAt:   now,
	}, nil
}

// Archive retracts previously published content. published_at survives the
// retraction. There is no transition out of archived; re-publication means a
// new draft record.
func Archive(c model.Content, reviewerID, notes string, now time.Time) (Change, error) {
	if c.Status != model.StatusPublished {
		return Change{}, ErrInvalidTransition
	}
	change := Change{
		From:        model.StatusPublished,
		To:          model.StatusArchived,
		ReviewedBy:  &reviewerID,
		PublishedAt: c.PublishedAt,
		ApprovedAt:  c.ApprovedAt,
		ReviewNotes: c.ReviewNotes,
		UpdatedAt:   now,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		change.ReviewNotes = &notes
	}
	return change, nil
}

// CanTransition reports whether any trigger leads from one status to another.
func CanTransition(from, to model.Status) bool {
	switch from {
	case model.StatusDraft:
		return to == model.StatusPending
	case model.StatusPending:
		return to == model.StatusPublished || to == model.StatusArchived
	case model.StatusPublished:
		return to == model.StatusArchived
	default:
		return false
	}
}
