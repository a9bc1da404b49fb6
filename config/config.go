package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DevMode    bool             `mapstructure:"dev_mode"`
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Objects    ObjectsConfig    `mapstructure:"objects"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Moderation ModerationConfig `mapstructure:"moderation"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

type StoreConfig struct {
	Backend          string `mapstructure:"backend"`
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	DynamoDBTable    string `mapstructure:"dynamodb_table"`
	SQLitePath       string `mapstructure:"sqlite_path"`
}

type ObjectsConfig struct {
	Backend       string `mapstructure:"backend"`
	Bucket        string `mapstructure:"bucket"`
	S3Endpoint    string `mapstructure:"s3_endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Dir           string `mapstructure:"dir"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type QueueConfig struct {
	SQSEndpoint     string `mapstructure:"sqs_endpoint"`
	OrphanQueueName string `mapstructure:"orphan_queue_name"`
}

type ClassifierConfig struct {
	Backend       string        `mapstructure:"backend"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	ModelVersion  string        `mapstructure:"model_version"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ONNXModelPath string        `mapstructure:"onnx_model_path"`
	ONNXLibrary   string        `mapstructure:"onnx_library"`
	ONNXImageSize int           `mapstructure:"onnx_image_size"`
}

type RateLimitConfig struct {
	ClassifyPerSecond float64 `mapstructure:"classify_per_second"`
	ClassifyBurst     int     `mapstructure:"classify_burst"`
}

type ModerationConfig struct {
	AutoFlagIdentities []string `mapstructure:"auto_flag_identities"`
	Moderators         []string `mapstructure:"moderators"`
	JWTSecret          string   `mapstructure:"jwt_secret"`
	GitHubClientID     string   `mapstructure:"github_client_id"`
	GitHubClientSecret string   `mapstructure:"github_client_secret"`
	GoogleClientID     string   `mapstructure:"google_client_id"`
	GoogleClientSecret string   `mapstructure:"google_client_secret"`
	RedirectURL        string   `mapstructure:"redirect_url"`
}

// Load reads an optional .env file and YAML config file, then applies
// GARDEN_* environment overrides (server.port -> GARDEN_SERVER_PORT).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "dynamo", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}
	switch c.Objects.Backend {
	case "s3", "fs":
	default:
		return fmt.Errorf("unsupported object backend: %q", c.Objects.Backend)
	}
	switch c.Classifier.Backend {
	case "replicate", "onnx":
	default:
		return fmt.Errorf("unsupported classifier backend: %q", c.Classifier.Backend)
	}
	if c.RateLimit.ClassifyPerSecond <= 0 || c.RateLimit.ClassifyBurst <= 0 {
		return errors.New("classify rate limit must be positive")
	}
	if c.Redis.TTL <= 0 {
		return errors.New("redis ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dev_mode", false)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.max_upload_size", 2*1024*1024)

	v.SetDefault("store.backend", "dynamo")
	v.SetDefault("store.dynamodb_endpoint", "")
	v.SetDefault("store.dynamodb_table", "Garden")
	v.SetDefault("store.sqlite_path", "./garden.db")

	v.SetDefault("objects.backend", "s3")
	v.SetDefault("objects.bucket", "garden")
	v.SetDefault("objects.s3_endpoint", "")
	v.SetDefault("objects.public_base_url", "")
	v.SetDefault("objects.dir", "./objects")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("queue.sqs_endpoint", "")
	v.SetDefault("queue.orphan_queue_name", "GardenOrphanObjectsQueue")

	v.SetDefault("classifier.backend", "replicate")
	v.SetDefault("classifier.url", "https://api.replicate.com")
	v.SetDefault("classifier.token", "")
	v.SetDefault("classifier.model_version", "566ab1f111e526640c5154e712d4d54961414278f89d36590f1425badc763ecb")
	v.SetDefault("classifier.timeout", 60*time.Second)
	v.SetDefault("classifier.onnx_model_path", "./assets/clip_labels.onnx")
	v.SetDefault("classifier.onnx_library", "")
	v.SetDefault("classifier.onnx_image_size", 224)

	v.SetDefault("ratelimit.classify_per_second", 1.0)
	v.SetDefault("ratelimit.classify_burst", 5)

	v.SetDefault("moderation.auto_flag_identities", []string{})
	v.SetDefault("moderation.moderators", []string{})
	v.SetDefault("moderation.jwt_secret", "")
	v.SetDefault("moderation.github_client_id", "")
	v.SetDefault("moderation.github_client_secret", "")
	v.SetDefault("moderation.google_client_id", "")
	v.SetDefault("moderation.google_client_secret", "")
	v.SetDefault("moderation.redirect_url", "")
}
