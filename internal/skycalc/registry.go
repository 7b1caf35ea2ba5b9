package skycalc

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Registry keeps the live sessions of a Service keyed by UUID.
type Registry struct {
	svc *Service

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(svc *Service) *Registry {
	return &Registry{
		svc:      svc,
		sessions: make(map[string]*Session),
	}
}

// Service returns the service the sessions are bound to.
func (r *Registry) Service() *Service {
	return r.svc
}

// Create starts a session holding the schema defaults.
func (r *Registry) Create() *Session {
	sess := r.svc.NewSession(uuid.NewString())

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Sessions returns the live sessions ordered by creation time.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
