package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/flowrelay/flowrelay/core"
)

// DefaultTTL is the inactivity window after which an untouched session is
// torn down.
const DefaultTTL = time.Hour

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local TTL cache. Sessions are created lazily on first contact, every
// write-back refreshes the inactivity TTL, and a background janitor prunes
// expired entries. Teardown is strictly TTL based, not size bounded.
type InMemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// Options configures an InMemoryStore.
type Options struct {
	// TTL is the session inactivity lifetime.
	TTL time.Duration
	// CleanupInterval controls how often the janitor sweeps expired
	// sessions; defaults to half the TTL.
	CleanupInterval time.Duration
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{TTL: DefaultTTL}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = opts.TTL / 2
	}
	return &InMemoryStore{cache: gocache.New(opts.TTL, opts.CleanupInterval), ttl: opts.TTL}
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// Get returns the session for the id, creating it on first contact. The
// read refreshes the inactivity TTL.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, error) {
	if v, ok := s.cache.Get(sessionID); ok {
		sess := v.(*core.Session)
		s.cache.SetDefault(sessionID, sess)
		return sess, nil
	}
	sess := core.NewSession(sessionID)
	s.cache.SetDefault(sessionID, sess)
	return sess, nil
}

// Create forces creation (or replacement) of a session with the given id.
func (s *InMemoryStore) Create(sessionID string) (*core.Session, error) {
	sess := core.NewSession(sessionID)
	s.cache.SetDefault(sessionID, sess)
	return sess, nil
}

// Save writes the session back, refreshing its inactivity TTL.
func (s *InMemoryStore) Save(sess *core.Session) error {
	s.cache.SetDefault(sess.ID, sess)
	return nil
}

// Len reports the number of live (non-expired) sessions.
func (s *InMemoryStore) Len() int { return s.cache.ItemCount() }
