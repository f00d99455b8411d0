package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/storage"
	"github.com/patrickmn/go-cache"
)

const snapshotKey = "gallery"

// IdentityLister is the part of the store the gallery reads.
type IdentityLister interface {
	LookupIdentities(ctx context.Context) ([]storage.Identity, error)
}

// Gallery serves immutable snapshots of the enrolled set. Snapshots are
// cached for ttl; Invalidate forces the next call to reload.
type Gallery struct {
	store IdentityLister
	ttl   time.Duration
	cache *cache.Cache
}

// NewGallery creates a gallery over store. A ttl of zero disables caching.
func NewGallery(store IdentityLister, ttl time.Duration) *Gallery {
	// no janitor: expired snapshots are simply replaced on the next read
	return &Gallery{
		store: store,
		ttl:   ttl,
		cache: cache.New(ttl, 0),
	}
}

// Snapshot returns the current enrolled set. Callers must not modify it.
func (g *Gallery) Snapshot(ctx context.Context) ([]Enrolled, error) {
	if g.ttl > 0 {
		if cached, found := g.cache.Get(snapshotKey); found {
			return cached.([]Enrolled), nil
		}
	}

	identities, err := g.store.LookupIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}

	snapshot := make([]Enrolled, len(identities))
	for i, identity := range identities {
		snapshot[i] = Enrolled{
			ID:       identity.ID,
			Name:     identity.Name,
			Encoding: identity.Encoding,
		}
	}

	if g.ttl > 0 {
		g.cache.Set(snapshotKey, snapshot, cache.DefaultExpiration)
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot.
func (g *Gallery) Invalidate() {
	g.cache.Delete(snapshotKey)
}
