// Package rbac is the single decision point for who may do what to a piece of
// content. Route guarding and every mutating handler consult the same table, so
// the rules cannot drift between pages.
package rbac

import (
	"errors"
	"time"

	"campuscms/internal/model"
)

// Anonymous is the role of a visitor without a usable session. A deactivated
// account is mapped to Anonymous before evaluation.
const Anonymous = model.Role("")

type Operation string

const (
	OpCreate          Operation = "create"
	OpEditOwnDraft    Operation = "editOwnDraft"
	OpEditAny         Operation = "editAny"
	OpSubmitForReview Operation = "submitForReview"
	OpApprove         Operation = "approve"
	OpReject          Operation = "reject"
	OpDeleteAny       Operation = "deleteAny"
	OpViewPrivate     Operation = "viewPrivate"
	OpViewPublic      Operation = "viewPublic"
)

var ErrDenied = errors.New("operation not permitted")

// Request is everything Decide may look at. Decide never reads a store; the
// caller resolves ownership and status before asking.
type Request struct {
	Role    model.Role
	Op      Operation
	Kind    model.Kind
	Status  model.Status
	IsOwner bool
}

// Decide returns true only for the capability pairs explicitly granted below;
// everything else is denied.
func Decide(req Request) bool {
	switch req.Op {
	case OpViewPublic:
		// public content is readable by everyone, anonymous included
		return req.Status == model.StatusPublished

	case OpViewPrivate:
		switch req.Role {
		case model.RoleAdmin:
			return true
		case model.RoleTeacher:
			return req.IsOwner
		}
		return false

	case OpCreate:
		switch req.Role {
		case model.RoleAdmin:
			return true
		case model.RoleTeacher:
			return req.Kind == model.KindPaper
		}
		return false

	case OpEditAny:
		// papers are edited by their authors and reviewed, not rewritten
		return req.Role == model.RoleAdmin && req.Kind != model.KindPaper

	case OpApprove, OpReject, OpDeleteAny:
		return req.Role == model.RoleAdmin

	case OpEditOwnDraft:
		if req.Kind != model.KindPaper || !req.IsOwner {
			return false
		}
		if req.Status != model.StatusDraft && req.Status != model.StatusPending {
			return false
		}
		return req.Role == model.RoleAdmin || req.Role == model.RoleTeacher

	case OpSubmitForReview:
		if !req.IsOwner || req.Status != model.StatusDraft {
			return false
		}
		switch req.Role {
		case model.RoleAdmin:
			return true
		case model.RoleTeacher:
			return req.Kind == model.KindPaper
		}
		return false
	}
	return false
}

// EffectiveRole maps a resolved actor to the role the evaluator sees. A missing
// or deactivated actor carries no capabilities at all.
func EffectiveRole(actor *model.Actor) model.Role {
	if actor == nil || !actor.IsActive {
		return Anonymous
	}
	return actor.Role
}

// PubliclyVisible is the visibility filter for sessionless reads: exactly the
// evaluator's answer for an anonymous viewPublic, plus the notice expiry rule.
// The SQL predicate in the repository must match this function.
func PubliclyVisible(c model.Content, now time.Time) bool {
	if !Decide(Request{Role: Anonymous, Op: OpViewPublic, Kind: c.Kind, Status: c.Status}) {
		return false
	}
	return !c.Expired(now)
}
