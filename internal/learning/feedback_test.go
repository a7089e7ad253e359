package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
)

func newTestService(t *testing.T) (*Service, datastore.Interface) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	sessions := NewSessionStore(&conf.LearningSettings{
		SessionTTL:      time.Minute,
		CleanupInterval: time.Minute,
	})
	rebuilder := featurecache.NewRebuilder(store, 2, nil)
	return NewService(sessions, store, rebuilder), store
}

func pendingSession(svc *Service) (*Session, *Candidate) {
	cand := &Candidate{
		ProductID:       "prod-1",
		Score:           0.88,
		Embedding:       []float32{0.6, 0.8},
		ColorDescriptor: []float32{0.25, 0.75},
	}
	sess := svc.Sessions().Create([]*Candidate{cand}, "")
	return sess, cand
}

func TestConfirmCreatesVerifiedTrainingImage(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	sess, cand := pendingSession(svc)

	got, err := svc.Confirm(context.Background(), sess.ID, cand.DetectionID, "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, got.State)

	imgs, err := store.GetTrainingImagesByProduct("prod-1")
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.True(t, imgs[0].Verified)
	assert.Equal(t, "feedback", imgs[0].Source)
	assert.Equal(t, "staff-7", imgs[0].CreatedBy)

	desc, err := datastore.DecodeVector(imgs[0].ColorDescriptor)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.75}, desc, "the crop's color descriptor is persisted")

	// Feedback also rebuilt the product's feature cache.
	row, err := store.GetFeatureCache("prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.ImageCount)
}

func TestConfirmIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	sess, cand := pendingSession(svc)

	_, err := svc.Confirm(context.Background(), sess.ID, cand.DetectionID, "staff-7")
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), sess.ID, cand.DetectionID, "staff-7")
	require.NoError(t, err)

	imgs, err := store.GetTrainingImagesByProduct("prod-1")
	require.NoError(t, err)
	assert.Len(t, imgs, 1, "double confirmation must create exactly one training image")
}

func TestCorrectOverridesPrediction(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	sess, cand := pendingSession(svc)

	got, err := svc.Correct(context.Background(), sess.ID, cand.DetectionID, "prod-2", "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StateCorrected, got.State)
	assert.Equal(t, "prod-2", got.ProductID)

	imgs, err := store.GetTrainingImagesByProduct("prod-2")
	require.NoError(t, err)
	assert.Len(t, imgs, 1)

	imgs, err = store.GetTrainingImagesByProduct("prod-1")
	require.NoError(t, err)
	assert.Empty(t, imgs, "the wrong prediction must not gain a training image")
}

func TestCorrectToPredictedProductConfirms(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	sess, cand := pendingSession(svc)

	got, err := svc.Correct(context.Background(), sess.ID, cand.DetectionID, "prod-1", "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, got.State)
}

func TestConfirmUnrecognizedRequiresCorrection(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	cand := &Candidate{Embedding: []float32{1, 0}}
	sess := svc.Sessions().Create([]*Candidate{cand}, "")

	_, err := svc.Confirm(context.Background(), sess.ID, cand.DetectionID, "staff-7")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	got, err := svc.Correct(context.Background(), sess.ID, cand.DetectionID, "prod-9", "staff-7")
	require.NoError(t, err)
	assert.Equal(t, StateCorrected, got.State)
}

func TestFeedbackOnUnknownSession(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Confirm(context.Background(), "no-such-session", "det-1", "staff-7")
	assert.True(t, errors.IsNotFound(err))
}

func TestFeedbackOnUnknownDetection(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	sess, _ := pendingSession(svc)

	_, err := svc.Confirm(context.Background(), sess.ID, "no-such-detection", "staff-7")
	assert.True(t, errors.IsNotFound(err))
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	sessions := NewSessionStore(&conf.LearningSettings{
		SessionTTL:      10 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	})
	sess := sessions.Create([]*Candidate{{ProductID: "prod-1", Embedding: []float32{1, 0}}}, "")

	_, err := sessions.Get(sess.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := sessions.Get(sess.ID)
		return errors.IsNotFound(err)
	}, time.Second, 10*time.Millisecond)
}
