package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"arete/internal/common/cache"
	commonmw "arete/internal/common/http/middleware"
	"arete/internal/common/mq"
	"arete/internal/common/storage"
	"arete/internal/interview/controller"
	"arete/internal/interview/decision/llm"
	"arete/internal/interview/sandbox"
	"arete/internal/interview/sandbox/engine"
	"arete/internal/interview/service"
	"arete/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8000"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultAppName          = "ARETE"
	defaultProblemsPath     = "configs/problems.json"
	defaultSnapshotInterval = 1500 * time.Millisecond
	defaultMaxDuration      = 30 * time.Minute
	defaultStuckTimeout     = 120 * time.Second
	defaultFinishedTTL      = time.Hour
	defaultAbandonedAfter   = 2 * time.Hour
	defaultSnapshotTTL      = 24 * time.Hour
	defaultEventTopic       = "interview.events"
	defaultEventBuffer      = 1024
	defaultArchiveBucket    = "interview-reports"

	apiKeyEnv = "OPENROUTER_API_KEY"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// InterviewConfig holds session settings.
type InterviewConfig struct {
	ProblemsPath     string        `yaml:"problemsPath"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	MaxDuration      time.Duration `yaml:"maxDuration"`
	StuckTimeout     time.Duration `yaml:"stuckTimeout"`
	StoreShards      int           `yaml:"storeShards"`
	ReportCacheSize  int           `yaml:"reportCacheSize"`
	ArchiveTimeout   time.Duration `yaml:"archiveTimeout"`
}

// SandboxConfig combines executor and engine settings.
type SandboxConfig struct {
	Executor sandbox.Config `yaml:"executor"`
	Engine   engine.Config  `yaml:"engine"`
}

// RedisConfig enables session snapshots and rate limiting when Addr is set.
type RedisConfig struct {
	cache.RedisConfig `yaml:",inline"`
	SnapshotTTL       time.Duration `yaml:"snapshotTTL"`
}

// KafkaConfig enables event streaming when brokers are set.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	Topic          string        `yaml:"topic"`
	Buffer         int           `yaml:"buffer"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// RateLimitConfig limits code execution endpoints.
type RateLimitConfig struct {
	Timeout time.Duration            `yaml:"timeout"`
	Run     commonmw.RateLimitPolicy `yaml:"run"`
	Submit  commonmw.RateLimitPolicy `yaml:"submit"`
}

// AppConfig holds interview-service configuration.
type AppConfig struct {
	AppName   string                `yaml:"appName"`
	Server    ServerConfig          `yaml:"server"`
	Logger    logger.Config         `yaml:"logger"`
	Interview InterviewConfig       `yaml:"interview"`
	Sweep     service.SweepConfig   `yaml:"sweep"`
	Sandbox   SandboxConfig         `yaml:"sandbox"`
	LLM       llm.Config            `yaml:"llm"`
	Redis     RedisConfig           `yaml:"redis"`
	MinIO     storage.MinIOConfig   `yaml:"minio"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	CORS      commonmw.CORSConfig   `yaml:"cors"`
	RateLimit RateLimitConfig       `yaml:"rateLimit"`
	Live      controller.LiveConfig `yaml:"live"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
		cfg.LLM.APIKey = key
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Interview.ProblemsPath == "" {
		cfg.Interview.ProblemsPath = defaultProblemsPath
	}
	if cfg.Interview.SnapshotInterval == 0 {
		cfg.Interview.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.Interview.MaxDuration == 0 {
		cfg.Interview.MaxDuration = defaultMaxDuration
	}
	if cfg.Interview.StuckTimeout == 0 {
		cfg.Interview.StuckTimeout = defaultStuckTimeout
	}

	if cfg.Sweep.FinishedTTL == 0 {
		cfg.Sweep.FinishedTTL = defaultFinishedTTL
	}
	if cfg.Sweep.AbandonedAfter == 0 {
		cfg.Sweep.AbandonedAfter = defaultAbandonedAfter
	}

	cfg.LLM = cfg.LLM.WithDefaults()

	if cfg.Redis.SnapshotTTL == 0 {
		cfg.Redis.SnapshotTTL = defaultSnapshotTTL
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = defaultArchiveBucket
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultEventTopic
	}
	if cfg.Kafka.Buffer == 0 {
		cfg.Kafka.Buffer = defaultEventBuffer
	}
	if cfg.Kafka.PublishTimeout == 0 {
		cfg.Kafka.PublishTimeout = 5 * time.Second
	}
}

// interviewerModel is what /config reports; without an API key the rule-based
// interviewer is used.
func (c *AppConfig) interviewerModel() string {
	if c.LLM.APIKey == "" {
		return "rules"
	}
	return c.LLM.InterviewerModel
}
