package api

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zlnvch/garden/api/rest"
	"github.com/zlnvch/garden/api/ws"
	"github.com/zlnvch/garden/cache"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/mq"
	"github.com/zlnvch/garden/objectstore"
	"github.com/zlnvch/garden/service"
	"github.com/zlnvch/garden/store"
	"github.com/zlnvch/garden/worker"
)

type GardenAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
	workers     *sync.WaitGroup
}

// Deps groups the backends the API is assembled from.
type Deps struct {
	Store       store.GardenStore
	Cache       cache.GardenCache
	OrphanQueue mq.MessageQueue
	Objects     objectstore.ObjectStore
	Scorer      classifier.Scorer
}

func NewGardenAPI(
	deps Deps,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	options service.Options,
	maxUploadSize int64,
	shutdownCtx context.Context,
) (*GardenAPI, error) {
	wsHub := ws.NewHub(deps.Cache)
	err := wsHub.InitSubscriptions(shutdownCtx)
	if err != nil {
		logging.Logger.Error("failed to start ws hub subscriptions", zap.Error(err))
		return &GardenAPI{}, err
	}
	workers := &sync.WaitGroup{}
	workers.Go(func() { wsHub.Run(shutdownCtx) })

	statsBatcher := worker.NewStatsBatcher(deps.Store, 60000)
	workers.Go(func() { statsBatcher.Run(shutdownCtx) })

	orphanConsumer := worker.NewOrphanConsumer(deps.OrphanQueue, deps.Store)
	workers.Go(func() { orphanConsumer.Run(shutdownCtx) })

	svc, err := service.NewService(
		deps.Store,
		deps.Cache,
		deps.OrphanQueue,
		deps.Objects,
		deps.Scorer,
		statsBatcher,
		oauthConfigs,
		jwtSecret,
		options,
	)
	if err != nil {
		logging.Logger.Error("failed to create service", zap.Error(err))
		return &GardenAPI{}, err
	}

	return &GardenAPI{
		restHandler: rest.NewHandler(svc, maxUploadSize),
		wsHandler:   ws.NewHandler(svc, wsHub),
		shutdownCtx: shutdownCtx,
		workers:     workers,
	}, nil
}

// Wait blocks until the background workers have stopped after shutdownCtx is
// done, including the final stats flush.
func (gardenAPI *GardenAPI) Wait() {
	gardenAPI.workers.Wait()
}

// RegisterRoutes mounts REST, the moderation feed and, when objectsDir is
// set, the locally stored drawings.
func (gardenAPI *GardenAPI) RegisterRoutes(router *gin.Engine, requiredOrigin string, objectsDir string) {
	router.Use(rest.CORS(requiredOrigin))

	gardenAPI.restHandler.Register(router)

	if objectsDir != "" {
		router.Static("/objects", objectsDir)
	}

	wsUpgrader := gardenAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	router.GET("/ws/moderation", func(c *gin.Context) {
		gardenAPI.wsHandler.ServeWS(wsUpgrader, c.Writer, c.Request, gardenAPI.shutdownCtx)
	})
}
