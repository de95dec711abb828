// Package initiation owns the onboarding session lifecycle: one pending session per member and
// community, resolved exactly once to Completed (a path was chosen) or Expired (the member timed out).
//
// The Machine is platform-neutral. Side effects such as posting the ritual prompt or removing a
// member are supplied by callers through the Prompter and Ejector interfaces.
package initiation

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusExpired   Status = "Expired"
)

// Path is the role a member chose to complete initiation.
type Path string

const (
	PathSilentWitness   Path = "SilentWitness"
	PathNeonDisciple    Path = "NeonDisciple"
	PathVeiledArchivist Path = "VeiledArchivist"
)

// Paths lists every selectable path in display order.
var Paths = []Path{PathSilentWitness, PathNeonDisciple, PathVeiledArchivist}

// Valid reports whether p is one of Paths.
func (p Path) Valid() bool {
	switch p {
	case PathSilentWitness, PathNeonDisciple, PathVeiledArchivist:
		return true
	}
	return false
}

var (
	// ErrPendingExists is returned when a member already has a pending session in the community.
	ErrPendingExists = errors.New("initiation: pending session already exists")
	// ErrInvalidPath is returned when completing with a path outside Paths.
	ErrInvalidPath = errors.New("initiation: invalid path")
)

// Session is one onboarding attempt. CompletedAt and ExpiredAt are mutually exclusive and set once.
type Session struct {
	ID              string
	UserID          string
	CommunityID     string
	RitualChannelID string
	RitualMessageID string
	JoinedAt        time.Time
	Status          Status
	ChosenPath      Path
	CompletedAt     *time.Time
	ExpiredAt       *time.Time
}

// Member is a snapshot of a community member that has not completed initiation.
type Member struct {
	UserID   string
	Username string
	JoinedAt time.Time // zero when unknown
	Bot      bool
}
