// Package learning implements the active-learning feedback loop. Every
// recognition run opens a short-lived session; staff confirmations and
// corrections flow back as verified training images and trigger a feature
// cache rebuild for the touched product.
package learning

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Feedback states a detection can be in within a session.
const (
	StatePending   = "PENDING"
	StateConfirmed = "CONFIRMED"
	StateCorrected = "CORRECTED"
)

// Candidate is one detection held in a session awaiting feedback.
type Candidate struct {
	DetectionID     string // stable id within the session
	ProductID       string // best-match product, empty when unrecognized
	Score           float64
	State           string
	CropJPEG        []byte    // encoded crop, kept only when the caller asked to store photos
	Embedding       []float32 // Stage-2 embedding of the crop
	ColorDescriptor []float32 // coarse color histogram of the crop
}

// Session groups the candidates of one recognition run.
type Session struct {
	ID             string
	CountSessionID string // external count session this run belongs to, if any
	CreatedAt      time.Time
	Candidates     map[string]*Candidate

	// trainingImageIDs records which datastore row each detection's
	// feedback produced. Repeated feedback finds its entry here and
	// becomes a no-op instead of a duplicate row.
	trainingImageIDs map[string]uint
}

// SessionStore keeps pending sessions in memory with a TTL. Sessions that
// never receive feedback expire silently.
type SessionStore struct {
	cache *gocache.Cache
}

// NewSessionStore creates a store using the configured TTL and sweep
// interval.
func NewSessionStore(settings *conf.LearningSettings) *SessionStore {
	ttl := settings.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sweep := settings.CleanupInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	return &SessionStore{cache: gocache.New(ttl, sweep)}
}

// Create opens a session for a set of candidates and returns it.
// countSessionID may be empty; when set it associates the run with an
// external stock-count session.
func (s *SessionStore) Create(candidates []*Candidate, countSessionID string) *Session {
	sess := &Session{
		ID:               uuid.New().String(),
		CountSessionID:   countSessionID,
		CreatedAt:        time.Now(),
		Candidates:       make(map[string]*Candidate, len(candidates)),
		trainingImageIDs: make(map[string]uint),
	}
	for _, c := range candidates {
		if c.DetectionID == "" {
			c.DetectionID = uuid.New().String()
		}
		c.State = StatePending
		sess.Candidates[c.DetectionID] = c
	}
	s.cache.SetDefault(sess.ID, sess)
	return sess
}

// Get fetches a live session.
func (s *SessionStore) Get(sessionID string) (*Session, error) {
	v, found := s.cache.Get(sessionID)
	if !found {
		return nil, errors.Newf("session %s not found or expired", sessionID).
			Component("learning").
			Category(errors.CategoryNotFound).
			Build()
	}
	return v.(*Session), nil
}

// Count reports live sessions, expired ones included until the next sweep.
func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}
