package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the segmentflow
// service.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Media   MediaConfig
	Upload  UploadConfig
	Kafka   KafkaConfig
	Storage StorageConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"segmentflow"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

// MediaConfig controls the durable media layout and the splitter.
type MediaConfig struct {
	Root            string        `env:"MEDIA_ROOT" envDefault:"static/uploads"`
	TempRoot        string        `env:"MEDIA_TEMP_ROOT" envDefault:"temp_uploads"`
	SegmentSeconds  int           `env:"MEDIA_SEGMENT_SECONDS" envDefault:"1200"`
	FFmpegBinary    string        `env:"MEDIA_FFMPEG_BINARY" envDefault:"ffmpeg"`
	SplitTimeout    time.Duration `env:"MEDIA_SPLIT_TIMEOUT" envDefault:"30m"`
	RemoveAssembled bool          `env:"MEDIA_REMOVE_ASSEMBLED" envDefault:"true"`
}

type UploadConfig struct {
	MaxChunkBytes     int64 `env:"UPLOAD_MAX_CHUNK_BYTES" envDefault:"104857600"`
	MultipartMemBytes int64 `env:"UPLOAD_MULTIPART_MEM_BYTES" envDefault:"52428800"`
}

type KafkaConfig struct {
	Enabled          bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	JobsTopic        string        `env:"KAFKA_JOBS_TOPIC" envDefault:"segmentflow.jobs"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	RetryBackoff     time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

// StorageConfig configures the optional segment archive. Serving is
// always from the local filesystem; the archive is additive.
type StorageConfig struct {
	ArchiveEnabled bool   `env:"STORAGE_ARCHIVE_ENABLED" envDefault:"false"`
	Provider       string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint       string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region         string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket         string `env:"STORAGE_BUCKET" envDefault:"segmentflow-segments"`
	AccessKey      string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey      string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL         bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=segmentflow"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
