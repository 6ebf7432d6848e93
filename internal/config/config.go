package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/presence"
	"github.com/alfredjeanlab/viewshare/internal/replicate"
)

type Config struct {
	DatabaseURL string // VIEWSHARE_DATABASE_URL (optional, empty = in-memory registry)
	GRPCAddr    string // VIEWSHARE_GRPC_ADDR (default ":9090")
	HTTPAddr    string // VIEWSHARE_HTTP_ADDR (default ":8080")
	NATSURL     string // VIEWSHARE_NATS_URL (optional, empty = in-process bus)
	AuthToken   string // VIEWSHARE_AUTH_TOKEN (optional, empty = auth disabled)

	// Participant tuning
	HeartbeatInterval time.Duration // VIEWSHARE_PRESENCE_HEARTBEAT (default 5s)
	DeadThreshold     time.Duration // VIEWSHARE_PRESENCE_DEAD (default 3 heartbeats)
	VOIRate           float64       // VIEWSHARE_VOI_RATE (default 10 per second)
	PointerRate       float64       // VIEWSHARE_POINTER_RATE (default 20 per second)
	CameraSync        bool          // VIEWSHARE_CAMERA_SYNC (default false)
	CameraDebounce    time.Duration // VIEWSHARE_CAMERA_DEBOUNCE (default 150ms)

	// Export settings
	SyncInterval   time.Duration // VIEWSHARE_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // VIEWSHARE_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // VIEWSHARE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // VIEWSHARE_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // VIEWSHARE_SYNC_S3_KEY (default "viewshare/sessions.jsonl")
	SyncFile       string        // VIEWSHARE_SYNC_FILE (local snapshot path; enables file export when set)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("VIEWSHARE_DATABASE_URL"),
		GRPCAddr:       envOrDefault("VIEWSHARE_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("VIEWSHARE_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("VIEWSHARE_NATS_URL"),
		AuthToken:      os.Getenv("VIEWSHARE_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("VIEWSHARE_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("VIEWSHARE_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("VIEWSHARE_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("VIEWSHARE_SYNC_S3_KEY", "viewshare/sessions.jsonl"),
		SyncFile:       os.Getenv("VIEWSHARE_SYNC_FILE"),
	}

	var err error
	if c.HeartbeatInterval, err = durationEnv("VIEWSHARE_PRESENCE_HEARTBEAT", "5s"); err != nil {
		return nil, err
	}
	if c.DeadThreshold, err = durationEnv("VIEWSHARE_PRESENCE_DEAD", ""); err != nil {
		return nil, err
	}
	if c.CameraDebounce, err = durationEnv("VIEWSHARE_CAMERA_DEBOUNCE", "150ms"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = durationEnv("VIEWSHARE_SYNC_INTERVAL", "3m"); err != nil {
		return nil, err
	}
	if c.VOIRate, err = floatEnv("VIEWSHARE_VOI_RATE", "10"); err != nil {
		return nil, err
	}
	if c.PointerRate, err = floatEnv("VIEWSHARE_POINTER_RATE", "20"); err != nil {
		return nil, err
	}
	if v := os.Getenv("VIEWSHARE_CAMERA_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("VIEWSHARE_CAMERA_SYNC: %w", err)
		}
		c.CameraSync = b
	}

	if c.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("VIEWSHARE_PRESENCE_HEARTBEAT must be positive")
	}
	if c.DeadThreshold != 0 && c.DeadThreshold <= c.HeartbeatInterval {
		return nil, fmt.Errorf("VIEWSHARE_PRESENCE_DEAD must exceed the heartbeat interval")
	}
	return c, nil
}

// Presence returns the presence settings.
func (c *Config) Presence() presence.Config {
	return presence.Config{HeartbeatInterval: c.HeartbeatInterval, DeadThreshold: c.DeadThreshold}
}

// Replicate returns the replication settings.
func (c *Config) Replicate() replicate.Config {
	return replicate.Config{
		VOIRate:        c.VOIRate,
		PointerRate:    c.PointerRate,
		CameraSync:     c.CameraSync,
		CameraDebounce: c.CameraDebounce,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key, fallback string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, fallback), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return f, nil
}
