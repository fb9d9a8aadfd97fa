package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Media    MediaConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// MediaConfig locates the source library and the external tools the
// transcoder/prober shell out to.
type MediaConfig struct {
	Root         string        `envconfig:"MEDIA_ROOT" required:"true"`
	FFmpegPath   string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath  string        `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	ProbeTimeout time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s"`
}

// CacheConfig controls the on-disk transcode cache's sizing and retention.
type CacheConfig struct {
	Dir              string        `envconfig:"TRANSCODE_CACHE_DIR"`
	SizeLimitBytes   int64         `envconfig:"TRANSCODE_CACHE_SIZE_LIMIT" default:"10737418240"`
	TTL              time.Duration `envconfig:"TRANSCODE_CACHE_TTL" default:"720h"`
	TranscodeTimeout time.Duration `envconfig:"TRANSCODE_TIMEOUT" default:"3600s"`
}

// ResolvedDir returns Dir, defaulting to a "vodcache" subdirectory of the OS
// temp dir when unset (spec's "OS-temp subdir" default can't be a static
// envconfig default since it depends on the runtime's TempDir).
func (c CacheConfig) ResolvedDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(os.TempDir(), "vodcache")
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vodcache"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vodcache"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vodcache"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisConfig backs the codec-probe cache.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return c.Host
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	// ArchiveBucket is optional: an empty value disables the cold-storage
	// archiver entirely rather than connecting to a bucket named "".
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET" default:""`
	UseSSL        bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

func (c MinIOConfig) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vodcache"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vodcache"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
