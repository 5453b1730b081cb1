// Package auth implements Runelink's authorization engine: a Principal
// (client or federation claims) is checked against a Requirement tree,
// producing a Session that memoizes user and membership lookups for the
// rest of the request.
package auth

import (
	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/models"
)

type reqKind int

const (
	reqAlways reqKind = iota
	reqNever
	reqClient
	reqHostAdmin
	reqUser
	reqServerMember
	reqServerAdmin
	reqFederatedUser
	reqOr
	reqClientOnly
	reqFederatedOnly
)

// Requirement is an authorization rule tree. Leaves test the principal or
// its memberships; combinators compose them. Evaluation short-circuits on
// the first satisfied branch.
type Requirement struct {
	kind     reqKind
	serverID uuid.UUID
	userRef  models.UserRef
	left     *Requirement
	right    *Requirement
}

// Always grants unconditionally.
func Always() *Requirement { return &Requirement{kind: reqAlways} }

// Never denies unconditionally.
func Never() *Requirement { return &Requirement{kind: reqNever} }

// Client requires a client principal.
func Client() *Requirement { return &Requirement{kind: reqClient} }

// HostAdmin requires a client principal whose user has the admin role.
func HostAdmin() *Requirement { return &Requirement{kind: reqHostAdmin} }

// User requires a client principal whose subject equals ref.
func User(ref models.UserRef) *Requirement {
	return &Requirement{kind: reqUser, userRef: ref}
}

// ServerMember requires the effective user to hold a membership on the
// server.
func ServerMember(serverID uuid.UUID) *Requirement {
	return &Requirement{kind: reqServerMember, serverID: serverID}
}

// ServerAdmin requires the effective user to hold an admin membership on the
// server.
func ServerAdmin(serverID uuid.UUID) *Requirement {
	return &Requirement{kind: reqServerAdmin, serverID: serverID}
}

// FederatedUser requires a federation principal delegated for ref.
func FederatedUser(ref models.UserRef) *Requirement {
	return &Requirement{kind: reqFederatedUser, userRef: ref}
}

// Or grants when either branch grants.
func Or(left, right *Requirement) *Requirement {
	return &Requirement{kind: reqOr, left: left, right: right}
}

// OrAdmin grants when the requirement grants or the principal is a host
// admin.
func (r *Requirement) OrAdmin() *Requirement {
	return Or(r, HostAdmin())
}

// ClientOnly denies federation principals before evaluating the requirement.
func (r *Requirement) ClientOnly() *Requirement {
	return &Requirement{kind: reqClientOnly, left: r}
}

// FederatedOnly denies client principals before evaluating the requirement.
func (r *Requirement) FederatedOnly() *Requirement {
	return &Requirement{kind: reqFederatedOnly, left: r}
}
