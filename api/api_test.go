package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/garden/api"
	cachemocks "github.com/zlnvch/garden/cache/mocks"
	classifiermocks "github.com/zlnvch/garden/classifier/mocks"
	"github.com/zlnvch/garden/models"
	mqmocks "github.com/zlnvch/garden/mq/mocks"
	objectmocks "github.com/zlnvch/garden/objectstore/mocks"
	"github.com/zlnvch/garden/service"
	storemocks "github.com/zlnvch/garden/store/mocks"
)

func TestGardenAPI_WaitFlushesStatsOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gardenStore := new(storemocks.MockStore)
	gardenCache := new(cachemocks.MockCache)
	queue := new(mqmocks.MockMQ)
	scorer := new(classifiermocks.MockScorer)

	gardenCache.On("Subscribe", mock.Anything, service.SubmissionsChannel, mock.Anything).Return(nil)
	queue.On("Receive", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.Canceled)

	// "a doodle" wins: rejected, counted under flowers
	probs := make([]float64, 10)
	probs[4] = 1
	scorer.On("Score", mock.Anything, mock.Anything).Return(probs, nil)

	flushed := make(chan struct{})
	gardenStore.On("IncrementStats", mock.Anything, models.CategoryFlowers, 0, 1).
		Run(func(args mock.Arguments) { close(flushed) }).
		Return(nil).Once()

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gardenAPI, err := api.NewGardenAPI(
		api.Deps{
			Store:       gardenStore,
			Cache:       gardenCache,
			OrphanQueue: queue,
			Objects:     new(objectmocks.MockObjectStore),
			Scorer:      scorer,
		},
		nil,
		[]byte("secret"),
		service.Options{ClassifyRate: 100, ClassifyBurst: 100},
		1<<20,
		shutdownCtx,
	)
	require.NoError(t, err)

	router := gin.New()
	gardenAPI.RegisterRoutes(router, "*", "")

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(`{"imageData":"data:image/png;base64,AAAA"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The batcher ticks once a minute, so only shutdown can flush here
	cancel()

	waited := make(chan struct{})
	go func() {
		gardenAPI.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}

	select {
	case <-flushed:
	default:
		t.Fatal("stats were not flushed before Wait returned")
	}
	gardenStore.AssertExpectations(t)
}
