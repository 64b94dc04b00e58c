package identity

import (
	"context"
	"errors"

	"github.com/webident/loginza/internal/models"
	"github.com/webident/loginza/internal/payload"
	"github.com/webident/loginza/pkg/metrics"
)

// ErrMappingExists is returned when deleting an identity that still has a
// user map; identities are cleaned up through their map, never underneath it.
var ErrMappingExists = errors.New("identity still has a user map")

// MappingLookup reports whether a user map exists for an identity key.
// Implemented by the usermap repository; declared here to avoid a cycle.
type MappingLookup interface {
	HasForIdentity(ctx context.Context, identityKey string) (bool, error)
}

// Store encapsulates identity persistence business logic
type Store struct {
	repo Repository
	maps MappingLookup
}

func NewStore(r Repository, maps MappingLookup) *Store {
	return &Store{repo: r, maps: maps}
}

// Upsert validates a raw broker payload and creates or refreshes the stored
// identity record keyed by its identity value. The raw payload is stored
// verbatim so downstream consumers (avatars, profile sync) see the latest
// broker response.
func (s *Store) Upsert(ctx context.Context, raw []byte) (*models.Identity, error) {
	p, err := payload.Parse(raw)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Upsert(ctx, p.Identity, p.Provider, string(raw))
	if err != nil {
		return nil, err
	}
	metrics.IdentitiesUpserted.WithLabelValues(p.Provider).Inc()
	return id, nil
}

func (s *Store) GetByIdentity(ctx context.Context, identityKey string) (*models.Identity, error) {
	return s.repo.GetByIdentity(ctx, identityKey)
}

// Delete removes an identity that has no user map. Deleting a mapped identity
// is rejected; delete the map instead and the identity goes with it.
func (s *Store) Delete(ctx context.Context, identityKey string) error {
	if s.maps != nil {
		mapped, err := s.maps.HasForIdentity(ctx, identityKey)
		if err != nil {
			return err
		}
		if mapped {
			return ErrMappingExists
		}
	}
	return s.repo.Delete(ctx, identityKey)
}
