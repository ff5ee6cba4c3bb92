// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Chat          ChatConfig          `mapstructure:"chat"`
}

// ServerConfig 存储 HTTP 服务相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Model 同时作为向量空间的版本号：同一文档的摄取与提问必须使用同一 Model。
type EmbeddingConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Dimensions  int           `mapstructure:"dimensions"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限流
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选，零值不下发）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// IngestConfig 存储文档摄取管道的配置。
type IngestConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`        // 每个分块的最大 token 数
	ChunkOverlap     int           `mapstructure:"chunk_overlap"`     // 相邻分块共享的 token 数
	SentenceLookback int           `mapstructure:"sentence_lookback"` // 句边界回看窗口（token 数）
	MaxDocumentSize  int64         `mapstructure:"max_document_size"` // 字节
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	DownloadRetries  int           `mapstructure:"download_retries"`
	PipelineTimeout  time.Duration `mapstructure:"pipeline_timeout"`
}

// ChatConfig 存储问答链路的配置。
type ChatConfig struct {
	TopK               int           `mapstructure:"top_k"`
	ContextTokenBudget int           `mapstructure:"context_token_budget"`
	HistoryTokenBudget int           `mapstructure:"history_token_budget"`
	HistoryMaxTurns    int           `mapstructure:"history_max_turns"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	MinScore           float64       `mapstructure:"min_score"` // 低于该分数的命中不进入上下文，0 表示关闭
	ShortSummaryTokens int           `mapstructure:"short_summary_tokens"`
	LongSummaryTokens  int           `mapstructure:"long_summary_tokens"`
	QuizMaxQuestions   int           `mapstructure:"quiz_max_questions"`
}

// Load 从指定路径读取 YAML 配置文件并解析，调用方负责将子配置注入各组件。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults 为未配置的关键参数填充默认值。
func (c *Config) applyDefaults() {
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 500
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		c.Ingest.ChunkOverlap = c.Ingest.ChunkSize / 10
	}
	if c.Ingest.SentenceLookback <= 0 {
		c.Ingest.SentenceLookback = 50
	}
	if c.Ingest.MaxDocumentSize <= 0 {
		c.Ingest.MaxDocumentSize = 50 * 1024 * 1024
	}
	if c.Ingest.DownloadTimeout <= 0 {
		c.Ingest.DownloadTimeout = 60 * time.Second
	}
	if c.Ingest.DownloadRetries <= 0 {
		c.Ingest.DownloadRetries = 3
	}
	if c.Ingest.PipelineTimeout <= 0 {
		c.Ingest.PipelineTimeout = 10 * time.Minute
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 4
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 30 * time.Second
	}
	if c.Embedding.CacheTTL <= 0 {
		c.Embedding.CacheTTL = 30 * 24 * time.Hour
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Chat.TopK <= 0 {
		c.Chat.TopK = 5
	}
	if c.Chat.ContextTokenBudget <= 0 {
		c.Chat.ContextTokenBudget = 2000
	}
	if c.Chat.HistoryTokenBudget <= 0 {
		c.Chat.HistoryTokenBudget = 1500
	}
	if c.Chat.HistoryMaxTurns <= 0 {
		c.Chat.HistoryMaxTurns = 20
	}
	if c.Chat.SessionTTL <= 0 {
		c.Chat.SessionTTL = 7 * 24 * time.Hour
	}
	if c.Chat.ShortSummaryTokens <= 0 {
		c.Chat.ShortSummaryTokens = 2000
	}
	if c.Chat.LongSummaryTokens <= 0 {
		c.Chat.LongSummaryTokens = 3000
	}
	if c.Chat.QuizMaxQuestions <= 0 {
		c.Chat.QuizMaxQuestions = 3
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "xiaowen-ingest-consumer"
	}
}
