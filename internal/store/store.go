// ABOUTME: Store interface and data types for fan club persistence
// ABOUTME: Defines Club, Membership, Post, Like structs and the unit-of-work contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConstraint is returned when a write violates a uniqueness or check constraint
var ErrConstraint = errors.New("constraint violation")

// ErrBusy is returned when the database stays locked past the busy timeout
var ErrBusy = errors.New("database busy")

// ClubStatus is the lifecycle state of a club
type ClubStatus string

const (
	ClubActive    ClubStatus = "active"
	ClubDisbanded ClubStatus = "disbanded"
)

// MembershipStatus is the lifecycle state of a membership row
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipRemoved MembershipStatus = "removed"
)

// Club is a named community owned by exactly one principal
type Club struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Avatar      string
	MemberCount int
	Level       int
	Status      ClubStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClubFilter narrows club listings
type ClubFilter struct {
	Keyword string     // case-insensitive substring of the name
	Status  ClubStatus // empty means any status
}

// Membership binds a principal to a club with a role
type Membership struct {
	ClubID      string
	PrincipalID string
	Role        Role
	Status      MembershipStatus
	JoinedAt    time.Time
	UpdatedAt   time.Time
}

// MembershipFilter narrows member listings
type MembershipFilter struct {
	Role Role // RoleNone means any role
}

// Post is a message in a club feed
type Post struct {
	ID        string
	ClubID    string
	AuthorID  string
	Body      string
	Images    []string
	LikeCount int
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostFilter narrows feed listings
type PostFilter struct {
	ClubID   string
	AuthorID string // empty means any author
}

// LikeResult is the outcome of a like toggle. Replayed is set when the
// request key had already been applied and nothing was toggled.
type LikeResult struct {
	Liked     bool
	LikeCount int
	Replayed  bool
}

// Store opens units of work against the database. Every read and write of the
// managers goes through one of the two methods so each operation commits or
// aborts as a whole.
type Store interface {
	// WithTx runs fn in a read-write transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx *Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx *Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}
