// Package identity holds the tenancy and authentication entities: Organization,
// Team, User, their memberships, and the capability tokens used to
// authenticate API calls.
package identity

import (
	"context"
	"time"
)

type OrgStatus string

const (
	OrgActive    OrgStatus = "active"
	OrgSuspended OrgStatus = "suspended"
)

type Organization struct {
	ID          string
	Name        string
	DisplayName string
	Status      OrgStatus
	OwnerUserID string
	Settings    map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TeamStatus string

const (
	TeamActive    TeamStatus = "active"
	TeamSuspended TeamStatus = "suspended"
)

// Team is the unit of resource ownership across the whole xDS graph.
type Team struct {
	ID             string
	Name           string
	DisplayName    string
	OrgID          string
	Status         TeamStatus
	EnvoyAdminPort int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TeamStats is a point-in-time summary of a team's live Envoy fleet,
// fetched from the admin port recorded on Team.EnvoyAdminPort.
type TeamStats struct {
	TeamID          string
	ActiveListeners int
	ActiveClusters  int
	TotalRequests   int64
	FailedRequests  int64
}

// StatsDataSource is the pluggable collector a team-overview endpoint would
// call through; no implementation ships against this interface (proxy
// admin scraping is out of scope), but Team.EnvoyAdminPort is the address
// any future implementation dials.
type StatsDataSource interface {
	FetchTeamStats(ctx context.Context, team Team) (TeamStats, error)
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type User struct {
	ID           string
	Email        string // normalized lowercase
	PasswordHash string
	Name         string
	Status       UserStatus
	IsAdmin      bool
	OrgID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrgRole string

const (
	RoleOwner  OrgRole = "owner"
	RoleAdmin  OrgRole = "admin"
	RoleMember OrgRole = "member"
)

type OrgMembership struct {
	ID        string
	UserID    string
	OrgID     string
	Role      OrgRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TeamMembership struct {
	ID        string
	UserID    string
	Team      string
	Scopes    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
	TokenExpired TokenStatus = "expired"
)

// PersonalAccessToken is the server-side record behind an
// `fp_pat_<id>.<secret>` or `fp_setup_<id>.<secret>` capability. The secret
// itself is never stored, only TokenHash (Argon2id).
type PersonalAccessToken struct {
	ID             string
	Name           string
	Description    string
	TokenHash      string
	Status         TokenStatus
	ExpiresAt      *time.Time
	LastUsedAt     *time.Time
	CreatedBy      string
	IsSetupToken   bool
	MaxUsageCount  *int
	UsageCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TokenScope struct {
	TokenID string
	Scope   string
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID        string
	Email     string
	TokenHash string
	OrgID     string
	Role      OrgRole
	ExpiresAt time.Time
	Status    InvitationStatus
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
