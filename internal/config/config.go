package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Limits      LimitsConfig     `json:"limits"`
	Sync        SyncConfig       `json:"sync"`
	Schedule    ScheduleConfig   `json:"schedule"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	Dimension     int         `json:"dimension"`
	Timeout       int         `json:"timeout"`
	MaxRetries    int         `json:"max_retries"`
	CacheSize     int         `json:"cache_size"`
	CacheTTLHours int         `json:"cache_ttl_hours"`
	ChunkTokens   int         `json:"chunk_tokens"`
	OverlapTokens int         `json:"overlap_tokens"`
	Data          interface{} `json:"data"`
}

type LimitsConfig struct {
	MaxFileBytes    int64 `json:"max_file_bytes"`
	MaxPackageBytes int64 `json:"max_package_bytes"`
	IngestWorkers   int   `json:"ingest_workers"`
}

type SyncConfig struct {
	FetchTimeout      int `json:"fetch_timeout"`
	MaxRetries        int `json:"max_retries"`
	StaleAfterMinutes int `json:"stale_after_minutes"`
}

type ScheduleConfig struct {
	SyncRepairSpec   string `json:"sync_repair_spec"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.Dimension == 0 {
		cfg.AI.Dimension = 1536
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 10000
	}
	if cfg.AI.CacheTTLHours == 0 {
		cfg.AI.CacheTTLHours = 2
	}
	if cfg.AI.ChunkTokens == 0 {
		cfg.AI.ChunkTokens = 512
	}
	if cfg.AI.OverlapTokens == 0 {
		cfg.AI.OverlapTokens = 50
	}
	if cfg.Limits.MaxFileBytes == 0 {
		cfg.Limits.MaxFileBytes = 10 << 20
	}
	if cfg.Limits.MaxPackageBytes == 0 {
		cfg.Limits.MaxPackageBytes = 100 << 20
	}
	if cfg.Limits.IngestWorkers == 0 {
		cfg.Limits.IngestWorkers = 4
	}
	if cfg.Sync.FetchTimeout == 0 {
		cfg.Sync.FetchTimeout = 30
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.StaleAfterMinutes == 0 {
		cfg.Sync.StaleAfterMinutes = 30
	}
	if cfg.Schedule.SyncRepairSpec == "" {
		cfg.Schedule.SyncRepairSpec = "*/10 * * * *"
	}
	if cfg.Schedule.CacheCleanupSpec == "" {
		cfg.Schedule.CacheCleanupSpec = "0 4 * * *"
	}
	return &cfg, nil
}
