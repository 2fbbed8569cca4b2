package model

import (
	"net/mail"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Role is a member's permission level within a team.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// TeamMembership links a user to a team.
type TeamMembership struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`

	// Muted silences the team's notifications on this device.
	Muted bool `json:"muted,omitempty"`
}

type membershipWire struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// RemoteShape implements syncp.Payload.
func (m TeamMembership) RemoteShape() any {
	return membershipWire{TeamID: m.TeamID, UserID: m.UserID, Role: m.Role}
}

// MergeFields implements syncp.Payload.
func (m TeamMembership) MergeFields(remote TeamMembership) TeamMembership {
	m.TeamID = remote.TeamID
	m.UserID = remote.UserID
	m.Role = remote.Role
	return m
}

// Validate implements syncp.Validator.
func (m TeamMembership) Validate() error {
	if err := firstErr(required("team_id", m.TeamID), required("user_id", m.UserID)); err != nil {
		return err
	}
	if !m.Role.valid() {
		return &syncp.ValidationError{Field: "role", Message: "must be owner, admin or member"}
	}
	return nil
}

// InvitationState is the lifecycle of an invitation.
type InvitationState string

const (
	InvitationPending  InvitationState = "pending"
	InvitationAccepted InvitationState = "accepted"
	InvitationDeclined InvitationState = "declined"
	InvitationRevoked  InvitationState = "revoked"
)

// Invitation asks someone to join a team.
type Invitation struct {
	TeamID    string          `json:"team_id"`
	Email     string          `json:"email"`
	Role      Role            `json:"role"`
	InvitedBy string          `json:"invited_by"`
	State     InvitationState `json:"state"`
}

// RemoteShape implements syncp.Payload.
func (i Invitation) RemoteShape() any { return i }

// MergeFields implements syncp.Payload.
func (i Invitation) MergeFields(remote Invitation) Invitation { return remote }

// Validate implements syncp.Validator.
func (i Invitation) Validate() error {
	if err := firstErr(required("team_id", i.TeamID), required("invited_by", i.InvitedBy)); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(i.Email); err != nil {
		return &syncp.ValidationError{Field: "email", Message: "must be a valid address"}
	}
	if !i.Role.valid() || i.Role == RoleOwner {
		return &syncp.ValidationError{Field: "role", Message: "must be admin or member"}
	}
	switch i.State {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationRevoked:
	default:
		return &syncp.ValidationError{Field: "state", Message: "unknown invitation state"}
	}
	return nil
}

// ContentHash implements syncp.Hasher.
func (i Invitation) ContentHash() string {
	return hashFields(i.TeamID, i.Email, string(i.Role), i.InvitedBy, string(i.State))
}

// OwnerID implements syncp.Owned.
func (i Invitation) OwnerID() string { return i.InvitedBy }
