package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/zlnvch/garden/api"
	"github.com/zlnvch/garden/api/rest"
	"github.com/zlnvch/garden/cache/redis"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/classifier/onnx"
	"github.com/zlnvch/garden/classifier/replicate"
	"github.com/zlnvch/garden/config"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/mq/sqsmq"
	"github.com/zlnvch/garden/objectstore"
	"github.com/zlnvch/garden/objectstore/fsstore"
	"github.com/zlnvch/garden/objectstore/s3store"
	"github.com/zlnvch/garden/service"
	"github.com/zlnvch/garden/store"
	"github.com/zlnvch/garden/store/dynamo"
	"github.com/zlnvch/garden/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Server.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx := context.Background()

	gardenStore, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to create store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	objects, objectsDir, err := newObjectStore(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to create object store", zap.String("backend", cfg.Objects.Backend), zap.Error(err))
	}

	scorer, closeScorer, err := newScorer(cfg)
	if err != nil {
		logging.Logger.Fatal("failed to create classifier", zap.String("backend", cfg.Classifier.Backend), zap.Error(err))
	}
	defer closeScorer()

	orphanQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.Queue.SQSEndpoint, cfg.Queue.OrphanQueueName)
	if err != nil {
		logging.Logger.Fatal("failed to create SQS MQ", zap.Error(err))
	}

	gardenCache, err := redis.NewRedisGardenCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TLS, cfg.Redis.TTL)
	if err != nil {
		logging.Logger.Fatal("failed to create redis cache", zap.Error(err))
	}
	defer gardenCache.Close()

	mod := cfg.Moderation
	var oauthConfigs = map[string]*oauth2.Config{
		"github": {
			ClientID:     mod.GitHubClientID,
			ClientSecret: mod.GitHubClientSecret,
			RedirectURL:  mod.RedirectURL,
		},
		"google": {
			ClientID:     mod.GoogleClientID,
			ClientSecret: mod.GoogleClientSecret,
			RedirectURL:  mod.RedirectURL,
		},
	}

	jwtSecret, err := base64.StdEncoding.DecodeString(mod.JWTSecret)
	if err != nil || len(jwtSecret) == 0 {
		logging.Logger.Fatal("moderation.jwt_secret must be non-empty base64", zap.Error(err))
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	gardenAPI, err := api.NewGardenAPI(
		api.Deps{
			Store:       gardenStore,
			Cache:       gardenCache,
			OrphanQueue: orphanQueue,
			Objects:     objects,
			Scorer:      scorer,
		},
		oauthConfigs,
		jwtSecret,
		service.Options{
			ClassifyRate:       rate.Limit(cfg.RateLimit.ClassifyPerSecond),
			ClassifyBurst:      cfg.RateLimit.ClassifyBurst,
			AutoFlagIdentities: mod.AutoFlagIdentities,
			Moderators:         mod.Moderators,
		},
		cfg.Server.MaxUploadSize,
		shutdownCtx,
	)
	if err != nil {
		logging.Logger.Fatal("failed to create garden api", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(rest.Logger())
	gardenAPI.RegisterRoutes(router, cfg.Server.AllowedOrigin, objectsDir)

	server := &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.Server.Port, ":"),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logging.Logger.Info("server starting", zap.String("addr", server.Addr), zap.Bool("devMode", cfg.DevMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logging.Logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Logger.Error("graceful shutdown failed", zap.Error(err))
	}

	gardenAPI.Wait()
	logging.Logger.Info("workers stopped")
}

func newStore(ctx context.Context, cfg *config.Config) (store.GardenStore, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlite.NewSQLiteGardenStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := dynamo.NewDynamoGardenStore(ctx, cfg.DevMode, cfg.Store.DynamoDBEndpoint, cfg.Store.DynamoDBTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// newObjectStore also returns the directory to serve under /objects for the
// filesystem backend.
func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.ObjectStore, string, error) {
	switch cfg.Objects.Backend {
	case "fs":
		baseURL := cfg.Objects.PublicBaseURL
		if baseURL == "" {
			baseURL = "/objects"
		}
		s, err := fsstore.NewFSObjectStore(cfg.Objects.Dir, baseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	default:
		s, err := s3store.NewS3ObjectStore(ctx, cfg.DevMode, cfg.Objects.S3Endpoint, cfg.Objects.Bucket, cfg.Objects.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	}
}

func newScorer(cfg *config.Config) (classifier.Scorer, func(), error) {
	c := cfg.Classifier
	switch c.Backend {
	case "onnx":
		s, err := onnx.NewScorer(c.ONNXModelPath, c.ONNXLibrary, c.ONNXImageSize)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return replicate.NewClient(c.URL, c.Token, c.ModelVersion, c.Timeout), func() {}, nil
	}
}
