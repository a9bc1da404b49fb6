package service_test

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cachemocks "github.com/zlnvch/garden/cache/mocks"
	classifiermocks "github.com/zlnvch/garden/classifier/mocks"
	mqmocks "github.com/zlnvch/garden/mq/mocks"
	objectmocks "github.com/zlnvch/garden/objectstore/mocks"
	"github.com/zlnvch/garden/service"
	storemocks "github.com/zlnvch/garden/store/mocks"
	"github.com/zlnvch/garden/worker"
)

type testDeps struct {
	store   *storemocks.MockStore
	cache   *cachemocks.MockCache
	queue   *mqmocks.MockMQ
	objects *objectmocks.MockObjectStore
	scorer  *classifiermocks.MockScorer
	stats   *worker.StatsBatcher
}

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, testDeps) {
	return setupServiceWithOptions(t, service.Options{
		ClassifyRate:       100,
		ClassifyBurst:      100,
		AutoFlagIdentities: []string{"6.6.6.6"},
		Moderators:         []string{"github:42"},
	})
}

func setupServiceWithOptions(t *testing.T, opts service.Options) (*service.Service, testDeps) {
	deps := testDeps{
		store:   new(storemocks.MockStore),
		cache:   new(cachemocks.MockCache),
		queue:   new(mqmocks.MockMQ),
		objects: new(objectmocks.MockObjectStore),
		scorer:  new(classifiermocks.MockScorer),
	}
	// Real batcher, never run; tests read its channel
	deps.stats = worker.NewStatsBatcher(deps.store, 1000)

	svc, err := service.NewService(
		deps.store,
		deps.cache,
		deps.queue,
		deps.objects,
		deps.scorer,
		deps.stats,
		nil,
		[]byte("secret"),
		opts,
	)
	require.NoError(t, err)

	return svc, deps
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitFor(t *testing.T, done chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for "+what)
	}
}

func nextStats(t *testing.T, stats *worker.StatsBatcher) worker.StatsUpdate {
	t.Helper()
	select {
	case u := <-stats.UpdateCh:
		return u
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for stats update")
	}
	return worker.StatsUpdate{}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func artifactPNG(t *testing.T) []byte {
	return encodePNG(t, 224, 224)
}

// probabilities builds a full label vector with the given leading values.
func probabilities(leading ...float64) []float64 {
	probs := make([]float64, 10)
	copy(probs, leading)
	return probs
}
