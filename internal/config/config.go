package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// Messages authored by a deleted account are kept for this long
	// before the sweeper removes them.
	DefaultRetentionGrace = 7 * 24 * time.Hour
	DefaultSweepInterval  = time.Hour
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	SweepInterval  time.Duration
	RetentionGrace time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, sweepInterval, retentionGrace time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if sweepInterval < 0 || retentionGrace < 0 {
		return nil, fmt.Errorf("sweep interval and retention grace must not be negative")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if sweepInterval == 0 {
		sweepInterval = DefaultSweepInterval
	}
	if retentionGrace == 0 {
		retentionGrace = DefaultRetentionGrace
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		SweepInterval:  sweepInterval,
		RetentionGrace: retentionGrace,
	}, nil
}
