package service

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/zlnvch/garden/cache"
	"github.com/zlnvch/garden/classifier"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/mq"
	"github.com/zlnvch/garden/objectstore"
	"github.com/zlnvch/garden/store"
	"github.com/zlnvch/garden/worker"
)

var (
	ErrInvalidCategory      = errors.New("invalid plant type")
	ErrInvalidProbability   = errors.New("invalid probability")
	ErrInvalidImage         = errors.New("invalid image")
	ErrClassificationFailed = errors.New("classification failed")
	ErrPersistenceFailed    = errors.New("failed to save image")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrUnauthorized         = errors.New("unauthorized")
)

const QuotaMessage = "You've reached the maximum of 10 flowers. Thank you for contributing!"

// QuotaError is returned when the authoritative flower count for an
// identity has already reached models.FlowerQuota.
type QuotaError struct {
	CurrentCount int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("flower quota exceeded: %d of %d", e.CurrentCount, models.FlowerQuota)
}

// Pub/sub channel carrying moderation feed events
const SubmissionsChannel = "submissions"

const (
	EventSubmissionCreated = "submission_created"
	EventSubmissionFlagged = "submission_flagged"
)

type Options struct {
	ClassifyRate       rate.Limit
	ClassifyBurst      int
	AutoFlagIdentities []string
	// Moderators lists allowed "provider:providerId" keys
	Moderators []string
}

type Service struct {
	Store        store.GardenStore
	Cache        cache.GardenCache
	OrphanQueue  mq.MessageQueue
	Objects      objectstore.ObjectStore
	Scorer       classifier.Scorer
	StatsBatcher *worker.StatsBatcher
	OAuthConfigs map[string]*oauth2.Config
	JWTSecret    []byte
	// UserInfoURLs overrides the provider user endpoints used after the
	// OAuth exchange.
	UserInfoURLs map[string]string

	options Options

	limitersMu sync.Mutex
	limiters   map[string]*identityLimiter
}

func NewService(
	store store.GardenStore,
	cache cache.GardenCache,
	orphanQueue mq.MessageQueue,
	objects objectstore.ObjectStore,
	scorer classifier.Scorer,
	statsBatcher *worker.StatsBatcher,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	options Options,
) (*Service, error) {
	oauthConfigs, err := addOauthEndpointsAndScopes(oauthConfigs)
	if err != nil {
		return nil, err
	}

	if options.ClassifyRate <= 0 {
		options.ClassifyRate = 1
	}
	if options.ClassifyBurst <= 0 {
		options.ClassifyBurst = 5
	}

	return &Service{
		Store:        store,
		Cache:        cache,
		OrphanQueue:  orphanQueue,
		Objects:      objects,
		Scorer:       scorer,
		StatsBatcher: statsBatcher,
		OAuthConfigs: oauthConfigs,
		JWTSecret:    jwtSecret,
		options:      options,
		limiters:     make(map[string]*identityLimiter),
	}, nil
}

func (s *Service) isAutoFlagged(identity string) bool {
	return slices.Contains(s.options.AutoFlagIdentities, identity)
}

func (s *Service) isModerator(m models.Moderator) bool {
	return slices.Contains(s.options.Moderators, m.Key())
}

func (s *Service) recordStats(update worker.StatsUpdate) {
	if s.StatsBatcher != nil {
		s.StatsBatcher.Record(update)
	}
}

type identityLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	maxTrackedIdentities = 10000
	limiterIdleTTL       = 10 * time.Minute
)

// allow applies the per-identity classify limit.
func (s *Service) allow(identity string) bool {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	now := time.Now()
	if len(s.limiters) >= maxTrackedIdentities {
		for id, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(s.limiters, id)
			}
		}
	}

	l, ok := s.limiters[identity]
	if !ok {
		l = &identityLimiter{limiter: rate.NewLimiter(s.options.ClassifyRate, s.options.ClassifyBurst)}
		s.limiters[identity] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}
