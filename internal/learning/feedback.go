package learning

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/logging"
)

// Service applies staff feedback to pending sessions. Confirmations keep
// the predicted product; corrections override it. Both produce one
// verified training image and rebuild the product's feature cache.
type Service struct {
	sessions  *SessionStore
	ds        datastore.Interface
	rebuilder *featurecache.Rebuilder
	log       *slog.Logger

	mu sync.Mutex // serializes feedback application across sessions
}

// NewService wires the feedback loop.
func NewService(sessions *SessionStore, ds datastore.Interface, rebuilder *featurecache.Rebuilder) *Service {
	return &Service{
		sessions:  sessions,
		ds:        ds,
		rebuilder: rebuilder,
		log:       logging.ForService("learning"),
	}
}

// Sessions exposes the session store for the recognition pipeline.
func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// Confirm records that the predicted product was right.
func (s *Service) Confirm(ctx context.Context, sessionID, detectionID, reviewer string) (*Candidate, error) {
	return s.apply(ctx, sessionID, detectionID, "", reviewer)
}

// Correct records the true product for a wrong or unrecognized detection.
func (s *Service) Correct(ctx context.Context, sessionID, detectionID, productID, reviewer string) (*Candidate, error) {
	if productID == "" {
		return nil, errors.Newf("correction requires a product id").
			Component("learning").
			Category(errors.CategoryValidation).
			Build()
	}
	return s.apply(ctx, sessionID, detectionID, productID, reviewer)
}

// apply is the single feedback path. An empty override means confirmation.
// Feedback is idempotent: re-submitting for a detection that already
// produced a training image returns the existing state untouched.
func (s *Service) apply(ctx context.Context, sessionID, detectionID, override, reviewer string) (*Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	cand, ok := sess.Candidates[detectionID]
	if !ok {
		return nil, errors.Newf("detection %s not in session %s", detectionID, sessionID).
			Component("learning").
			Category(errors.CategoryNotFound).
			Build()
	}

	if _, done := sess.trainingImageIDs[detectionID]; done {
		s.log.Debug("feedback already applied, ignoring repeat",
			"session_id", sessionID, "detection_id", detectionID)
		return cand, nil
	}

	productID := cand.ProductID
	state := StateConfirmed
	if override != "" && override != cand.ProductID {
		productID = override
		state = StateCorrected
	}
	if productID == "" {
		return nil, errors.Newf("cannot confirm an unrecognized detection, submit a correction").
			Component("learning").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(cand.Embedding) == 0 {
		return nil, errors.Newf("detection %s carries no embedding", detectionID).
			Component("learning").
			Category(errors.CategoryState).
			Build()
	}

	img := &datastore.TrainingImage{
		ProductID:  productID,
		Vector:     datastore.EncodeVector(cand.Embedding),
		Confidence: cand.Score,
		Verified:   true,
		Source:     "feedback",
		CreatedBy:  reviewer,
	}
	if len(cand.ColorDescriptor) > 0 {
		img.ColorDescriptor = datastore.EncodeVector(cand.ColorDescriptor)
	}
	if err := s.ds.SaveTrainingImage(img); err != nil {
		return nil, err
	}

	sess.trainingImageIDs[detectionID] = img.ID
	cand.State = state
	cand.ProductID = productID

	if err := s.rebuilder.Rebuild(ctx, productID); err != nil {
		// The training image is in; a failed rebuild is recoverable by
		// the next bulk rebuild, so feedback still succeeds.
		s.log.Error("feature cache rebuild after feedback failed",
			"product_id", productID, "error", err)
	}

	s.log.Info("feedback applied",
		"session_id", sessionID,
		"detection_id", detectionID,
		"product_id", productID,
		"state", state,
		"training_image_id", img.ID)
	return cand, nil
}
