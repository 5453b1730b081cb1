package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/token"
)

// Principal is the authenticated caller: exactly one of Client or Federation
// is set.
type Principal struct {
	Client     *token.ClientAccessClaims
	Federation *token.FederationClaims
}

// ClientPrincipal wraps verified client access claims.
func ClientPrincipal(claims *token.ClientAccessClaims) Principal {
	return Principal{Client: claims}
}

// FederationPrincipal wraps verified federation claims.
func FederationPrincipal(claims *token.FederationClaims) Principal {
	return Principal{Federation: claims}
}

// Directory is the subset of the store the authorization engine queries.
type Directory interface {
	GetUserByRef(ctx context.Context, ref models.UserRef) (*models.User, error)
	MembershipRole(ctx context.Context, serverID uuid.UUID, ref models.UserRef) (models.ServerRole, error)
}

// Session is the outcome of a successful authorization: the effective user
// (if any), the original federation claims (if any), and memoized lookups so
// repeated checks in one request don't re-query.
type Session struct {
	UserRef    *models.UserRef
	Federation *token.FederationClaims

	dir        Directory
	user       *models.User
	userLoaded bool
	roles      map[uuid.UUID]*models.ServerRole
}

// newSession derives the effective user from the principal.
func newSession(dir Directory, principal Principal) (*Session, error) {
	s := &Session{dir: dir, roles: make(map[uuid.UUID]*models.ServerRole)}
	switch {
	case principal.Client != nil:
		ref, ok := models.ParseSubject(principal.Client.Sub)
		if !ok {
			return nil, apperr.Auth("Invalid token subject (expected name@host)")
		}
		s.UserRef = &ref
	case principal.Federation != nil:
		s.Federation = principal.Federation
		if principal.Federation.UserRef != nil {
			ref := *principal.Federation.UserRef
			s.UserRef = &ref
		}
	default:
		return nil, apperr.Auth("Missing principal")
	}
	return s, nil
}

// LookupUser fetches and memoizes the effective user's record. A missing
// record yields (nil, nil).
func (s *Session) LookupUser(ctx context.Context) (*models.User, error) {
	if s.userLoaded {
		return s.user, nil
	}
	if s.UserRef == nil {
		s.userLoaded = true
		return nil, nil
	}
	user, err := s.dir.GetUserByRef(ctx, *s.UserRef)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.userLoaded = true
			return nil, nil
		}
		return nil, err
	}
	s.user = user
	s.userLoaded = true
	return user, nil
}

// membershipRole fetches and memoizes the effective user's role on a server.
// A missing membership yields (nil, nil).
func (s *Session) membershipRole(ctx context.Context, serverID uuid.UUID) (*models.ServerRole, error) {
	if role, ok := s.roles[serverID]; ok {
		return role, nil
	}
	if s.UserRef == nil {
		s.roles[serverID] = nil
		return nil, nil
	}
	role, err := s.dir.MembershipRole(ctx, serverID, *s.UserRef)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.roles[serverID] = nil
			return nil, nil
		}
		return nil, err
	}
	s.roles[serverID] = &role
	return &role, nil
}

// Authorize evaluates the requirement against the principal. On success it
// returns the session; on denial an auth error with a one-line reason.
func Authorize(ctx context.Context, dir Directory, principal Principal, req *Requirement) (*Session, error) {
	session, err := newSession(dir, principal)
	if err != nil {
		return nil, err
	}
	ok, reason, err := evaluate(ctx, session, principal, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Auth(reason)
	}
	return session, nil
}

// evaluate walks the requirement tree. It returns whether the requirement is
// satisfied and, if not, a human-readable reason. Lookup failures other than
// not-found propagate as errors.
func evaluate(ctx context.Context, s *Session, p Principal, req *Requirement) (bool, string, error) {
	switch req.kind {
	case reqAlways:
		return true, "", nil

	case reqNever:
		return false, "Operation is disabled", nil

	case reqClient:
		if p.Client == nil {
			return false, "Client authentication required", nil
		}
		return true, "", nil

	case reqHostAdmin:
		if p.Client == nil {
			return false, "Client authentication required", nil
		}
		user, err := s.LookupUser(ctx)
		if err != nil {
			return false, "", err
		}
		if user == nil || user.Role != models.RoleAdmin {
			return false, "Host admin role required", nil
		}
		return true, "", nil

	case reqUser:
		if p.Client == nil {
			return false, "Client authentication required", nil
		}
		if s.UserRef == nil || *s.UserRef != req.userRef {
			return false, fmt.Sprintf("Must be authenticated as %s", req.userRef), nil
		}
		return true, "", nil

	case reqServerMember:
		role, err := s.membershipRole(ctx, req.serverID)
		if err != nil {
			return false, "", err
		}
		if role == nil {
			return false, "Server membership required", nil
		}
		return true, "", nil

	case reqServerAdmin:
		role, err := s.membershipRole(ctx, req.serverID)
		if err != nil {
			return false, "", err
		}
		if role == nil || *role != models.ServerRoleAdmin {
			return false, "Server admin role required", nil
		}
		return true, "", nil

	case reqFederatedUser:
		if p.Federation == nil {
			return false, "Federation authentication required", nil
		}
		if p.Federation.UserRef == nil || *p.Federation.UserRef != req.userRef {
			return false, fmt.Sprintf("Must be delegated for %s", req.userRef), nil
		}
		return true, "", nil

	case reqOr:
		ok, leftReason, err := evaluate(ctx, s, p, req.left)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}
		ok, _, err = evaluate(ctx, s, p, req.right)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}
		return false, leftReason, nil

	case reqClientOnly:
		if p.Federation != nil {
			return false, "Operation is not available over federation", nil
		}
		return evaluate(ctx, s, p, req.left)

	case reqFederatedOnly:
		if p.Client != nil {
			return false, "Operation is only available over federation", nil
		}
		return evaluate(ctx, s, p, req.left)

	default:
		return false, "Unknown requirement", nil
	}
}
