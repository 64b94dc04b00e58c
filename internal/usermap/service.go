package usermap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/webident/loginza/internal/identity"
	"github.com/webident/loginza/internal/models"
	"github.com/webident/loginza/internal/payload"
	"github.com/webident/loginza/internal/users"
	"github.com/webident/loginza/pkg/logger"
	"github.com/webident/loginza/pkg/metrics"
)

// maxCollisionIterations bounds the email/username collision loop. Every
// default-email collision rewrites the candidate email, so the loop normally
// terminates in one or two steps; the bound guards against a duplicate
// non-default email that never changes between iterations.
const maxCollisionIterations = 10

// ErrCollisionUnresolved is returned when the collision loop cannot find a
// free email within maxCollisionIterations.
var ErrCollisionUnresolved = errors.New("could not resolve email collision")

// RequestInfo carries the inbound request context handed to observers.
type RequestInfo struct {
	RemoteAddr string
	UserAgent  string
	Path       string
}

// Observer is notified synchronously after a new map has been persisted,
// e.g. to send a welcome email. Return values are not consumed.
type Observer interface {
	MappingCreated(ctx context.Context, req *RequestInfo, m *models.UserMap)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, req *RequestInfo, m *models.UserMap)

func (f ObserverFunc) MappingCreated(ctx context.Context, req *RequestInfo, m *models.UserMap) {
	f(ctx, req, m)
}

// AvatarSetter stores a remote photo as the account's avatar.
type AvatarSetter interface {
	SetFromURL(ctx context.Context, userID int64, photoURL string) error
}

// Service resolves identities to local accounts: find-or-create with
// deterministic, collision-free username/email derivation, plus profile
// attribute sync from the raw broker payload.
type Service struct {
	maps         Repository
	users        users.Repository
	identities   identity.Repository
	avatars      AvatarSetter
	defaultEmail string
	observers    []Observer
}

// NewService wires the mapper. avatars may be nil when no avatar storage is
// configured; photo fields are then ignored.
func NewService(maps Repository, u users.Repository, ids identity.Repository, avatars AvatarSetter, defaultEmail string) *Service {
	return &Service{
		maps:         maps,
		users:        u,
		identities:   ids,
		avatars:      avatars,
		defaultEmail: defaultEmail,
	}
}

// Subscribe registers an observer for map creation events.
func (s *Service) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// ForIdentity returns the existing map for the identity, or creates a new
// local account plus map when none exists yet. Repeated calls for the same
// identity are idempotent.
func (s *Service) ForIdentity(ctx context.Context, ident *models.Identity, req *RequestInfo) (*models.UserMap, error) {
	m, err := s.maps.GetByIdentity(ctx, ident.Identity)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}

	p, err := payload.Parse([]byte(ident.Data))
	if err != nil {
		return nil, err
	}

	email := p.Email
	if !strings.Contains(email, "@") {
		email = s.defaultEmail
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("no usable email for identity %q and no default email configured", ident.Identity)
	}

	// no nickname - derive the username from the email local part,
	// e.g. carl@example.com -> carl
	username := p.Nickname
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	email, username, err = s.resolveCollisions(ctx, email, username)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, &models.User{Username: username, Email: email})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	m, err = s.maps.Create(ctx, &models.UserMap{Identity: ident.Identity, UserID: u.ID})
	if err != nil {
		return nil, fmt.Errorf("create user map: %w", err)
	}

	metrics.MappingsCreated.WithLabelValues(ident.Provider).Inc()
	for _, o := range s.observers {
		o.MappingCreated(ctx, req, m)
	}
	return m, nil
}

// resolveCollisions suffixes the username with each colliding account's id
// until the candidate email is free. When the collision is with the
// configured default email the candidate email is rewritten to
// username@<original-domain>, so successive default-email accounts stop
// colliding on the shared address.
func (s *Service) resolveCollisions(ctx context.Context, email, username string) (string, string, error) {
	for i := 0; i < maxCollisionIterations; i++ {
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return "", "", err
		}
		if existing == nil {
			return email, username, nil
		}
		username = fmt.Sprintf("%s%d", username, existing.ID)
		if existing.Email == s.defaultEmail {
			domain := email[strings.LastIndex(email, "@")+1:]
			email = username + "@" + domain
		}
	}
	return "", "", fmt.Errorf("%w for email %q", ErrCollisionUnresolved, email)
}

// ApplyProfile syncs first/last name and the avatar photo from the identity's
// stored payload onto the account. Name fields are always persisted; a failed
// or missing photo never blocks the login.
func (s *Service) ApplyProfile(ctx context.Context, ident *models.Identity, u *models.User) error {
	p, err := payload.Parse([]byte(ident.Data))
	if err != nil {
		return err
	}

	var first, last string
	if p.Name != nil {
		first = p.Name.FirstName
		if first == "" {
			first = p.Name.FullName
		}
		last = p.Name.LastName
	}
	if first == "" {
		first = p.FullName
	}
	if first == "" {
		first = p.Nickname
	}
	if first == "" {
		m, err := s.maps.GetByIdentity(ctx, ident.Identity)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no user map for identity %q", ident.Identity)
		}
		first = fmt.Sprintf("noname%d", m.ID)
	}
	if last == "" {
		last = u.LastName
	}

	if err := s.users.UpdateName(ctx, u.ID, first, last); err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	u.FirstName, u.LastName = first, last

	if p.Photo != "" && s.avatars != nil {
		if err := s.avatars.SetFromURL(ctx, u.ID, p.Photo); err != nil {
			metrics.AvatarFetchFailures.Inc()
			logger.Warnf("avatar fetch failed for user %d (%s): %v", u.ID, p.Photo, err)
		}
	}
	return nil
}

// SetVerified flips the verified flag on a map.
func (s *Service) SetVerified(ctx context.Context, mapID int64, verified bool) error {
	return s.maps.SetVerified(ctx, mapID, verified)
}

// DeleteMapping removes a map and cascades to its identity, so no orphaned
// raw payload is left behind.
func (s *Service) DeleteMapping(ctx context.Context, mapID int64) error {
	m, err := s.maps.GetByID(ctx, mapID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if err := s.maps.Delete(ctx, mapID); err != nil {
		return err
	}
	if err := s.identities.Delete(ctx, m.Identity); err != nil {
		return fmt.Errorf("cascade identity delete: %w", err)
	}
	return nil
}
