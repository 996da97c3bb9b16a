package store

import "time"

const (
	StatusDraft      = "DRAFT"
	StatusInReview   = "IN_REVIEW"
	StatusPublished  = "PUBLISHED"
	StatusDeprecated = "DEPRECATED"
)

// ArticleTypes is the closed set of article kinds; the type is immutable
// after creation.
var ArticleTypes = map[string]struct{}{
	"RUNBOOK":          {},
	"TROUBLESHOOTING":  {},
	"SOP":              {},
	"HOW_TO":           {},
	"ARCHITECTURE":     {},
	"CHANGE_PROCEDURE": {},
}

// ArticleStatuses is the closed set of lifecycle states. Any direct jump
// between states is legal; only entering PUBLISHED or DEPRECATED is
// role-gated.
var ArticleStatuses = map[string]struct{}{
	StatusDraft:      {},
	StatusInReview:   {},
	StatusPublished:  {},
	StatusDeprecated: {},
}

type Space struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Collection struct {
	ID          string
	SpaceID     string
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Article is the mutable current projection; its full history lives in
// article_versions.
type Article struct {
	ID             string
	SpaceID        string
	CollectionID   *string
	Title          string
	Slug           string
	Type           string
	Content        string
	Status         string
	OwnerID        *string
	LastVerifiedAt *time.Time
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ArticleVersion is an immutable snapshot. (ArticleID, VersionNumber) is
// the stable addressing key for restore.
type ArticleVersion struct {
	ArticleID     string
	VersionNumber int
	Title         string
	Content       string
	ChangeSummary *string
	CreatedBy     string
	CreatedAt     time.Time
}

type Comment struct {
	ID        string
	ArticleID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// AuditEvent is append-only; insertion order is the causal order,
// CreatedAt descending is the display order.
type AuditEvent struct {
	ID         int64
	Action     string
	EntityType string
	EntityID   string
	Meta       map[string]any
	ActorID    *string
	CreatedAt  time.Time
}

// ArticlePatch carries an Update request. Nil fields are "leave
// unchanged"; Tags is nil when absent and non-nil (possibly empty) when
// the tag set should be reconciled.
type ArticlePatch struct {
	Title          *string
	Content        *string
	Tags           []string
	OwnerID        *string
	LastVerifiedAt *time.Time
	Status         *string
	ChangeSummary  *string
}

// ArticleFilter drives the read-side listing surface.
type ArticleFilter struct {
	SpaceID      string
	CollectionID string
	Status       string
	Query        string
	Limit        int
}
