package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
)

type RedisGardenCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGardenCache(ctx context.Context, addr string, password string, db int, useTLS bool, ttl time.Duration) (*RedisGardenCache, error) {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if useTLS {
		// AWS elasticache endpoints require TLS
		opts.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(opts)

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisGardenCache{client: client, ttl: ttl}, nil
}

func (redisCache *RedisGardenCache) Close() error {
	return redisCache.client.Close()
}

func (redisCache *RedisGardenCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

func (redisCache *RedisGardenCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		logging.Logger.Warn("pubsub channel closed", zap.String("channel", channel))
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Gallery keys share the {category} hash tag so one category's pages and
// their index live in the same cluster slot.
func buildGalleryPageKey(category models.Category, page int) string {
	return "gallery:{" + string(category) + "}:page:" + strconv.Itoa(page)
}

func buildGalleryIndexKey(category models.Category) string {
	return "gallery:{" + string(category) + "}:pages"
}

func buildGalleryGenerationKey(category models.Category) string {
	return "gallery:{" + string(category) + "}:gen"
}

func buildSubmitterCountKey(submitter string) string {
	return "submitter:{" + submitter + "}:flower_count"
}

func (redisCache *RedisGardenCache) GetGalleryPage(ctx context.Context, category models.Category, page int) ([]byte, bool, error) {
	data, err := redisCache.client.Get(ctx, buildGalleryPageKey(category, page)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// setGalleryPageScript writes a page only while the category generation still
// matches the one read before the page was loaded from the store.
var setGalleryPageScript = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[3]) or '0')
if gen ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('SADD', KEYS[2], KEYS[1])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

var invalidateGalleryScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
local keys = redis.call('SMEMBERS', KEYS[1])
for _, key in ipairs(keys) do
	redis.call('DEL', key)
end
redis.call('DEL', KEYS[1])
return #keys
`)

func (redisCache *RedisGardenCache) GalleryGeneration(ctx context.Context, category models.Category) (int64, error) {
	gen, err := redisCache.client.Get(ctx, buildGalleryGenerationKey(category)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

func (redisCache *RedisGardenCache) SetGalleryPage(ctx context.Context, category models.Category, page int, generation int64, data []byte) (bool, error) {
	keys := []string{
		buildGalleryPageKey(category, page),
		buildGalleryIndexKey(category),
		buildGalleryGenerationKey(category),
	}
	stored, err := setGalleryPageScript.Run(ctx, redisCache.client, keys, generation, data, redisCache.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateGallery bumps the category generation and drops every cached page,
// so fills that started before it are discarded.
func (redisCache *RedisGardenCache) InvalidateGallery(ctx context.Context, category models.Category) error {
	keys := []string{buildGalleryIndexKey(category), buildGalleryGenerationKey(category)}
	return invalidateGalleryScript.Run(ctx, redisCache.client, keys).Err()
}

func (redisCache *RedisGardenCache) GetSubmitterCount(ctx context.Context, submitter string) (int, error) {
	val, err := redisCache.client.Get(ctx, buildSubmitterCountKey(submitter)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return -1, nil // Not found
		}
		return 0, err
	}
	return val, nil
}

func (redisCache *RedisGardenCache) SeedSubmitterCount(ctx context.Context, submitter string, count int) error {
	return redisCache.client.SetNX(ctx, buildSubmitterCountKey(submitter), count, redisCache.ttl).Err()
}

var incrementIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	local n = redis.call('INCR', KEYS[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	return n
end
return -1
`)

// IncrementSubmitterCount only bumps a seeded counter. A missing key stays
// missing so the next read reseeds from the store.
func (redisCache *RedisGardenCache) IncrementSubmitterCount(ctx context.Context, submitter string) (int64, error) {
	keys := []string{buildSubmitterCountKey(submitter)}
	return incrementIfExistsScript.Run(ctx, redisCache.client, keys, redisCache.ttl.Milliseconds()).Int64()
}
