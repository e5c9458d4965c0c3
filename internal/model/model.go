package model

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return Role(value), true
	default:
		return "", false
	}
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusDraft, StatusPending, StatusPublished, StatusArchived:
		return Status(value), true
	default:
		return "", false
	}
}

type Kind string

const (
	KindNotice Kind = "notice"
	KindNews   Kind = "news"
	KindEvent  Kind = "event"
	KindPaper  Kind = "research_paper"
)

func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindNotice, KindNews, KindEvent, KindPaper:
		return Kind(value), true
	default:
		return "", false
	}
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleAssignment is the single authoritative role record for a user. Exactly one
// row exists per user; it changes only through an admin role-change request.
type RoleAssignment struct {
	UserID string
	Role   Role
}

type Profile struct {
	UserID      string
	DisplayName string
	Department  *string
	IsActive    bool
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor is the per-request view of a signed-in user, resolved from the role
// store on every request rather than from token claims.
type Actor struct {
	UserID     string
	Role       Role
	IsActive   bool
	IsVerified bool
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type Content struct {
	ID     string
	Kind   Kind
	Status Status
	Title  string
	Body   string

	// kind-specific fields
	Summary       *string    // news
	Location      *string    // event
	StartsAt      *time.Time // event
	ExpiresAt     *time.Time // notice
	Abstract      *string    // research paper
	DocumentURL   *string    // research paper
	AttachmentURL *string

	CreatedBy   string
	SubmittedBy *string // research paper, equals CreatedBy
	ReviewedBy  *string
	ReviewNotes *string
	ApprovedAt  *time.Time
	PublishedAt *time.Time

	Views     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether a notice's expiry has passed. Content without an
// expiry never expires.
func (c Content) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (c Content) OwnedBy(userID string) bool {
	return c.CreatedBy == userID
}
