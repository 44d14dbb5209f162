package upload

import (
	"log"
	"time"
)

const (
	DefaultPartSize       = 5 << 20
	DefaultMaxConcurrent  = 3
	DefaultMaxFileSize    = 500 << 20
	DefaultPartTimeout    = 2 * time.Minute
	DefaultReleaseTimeout = 10 * time.Second
)

type Logger interface {
	Printf(format string, v ...interface{})
}

type Config struct {
	// Part size requested from the backend. The backend has the final word.
	PartSize int64
	// Upper bound on simultaneous part transfers.
	MaxConcurrent int
	// Largest file accepted by Start.
	MaxFileSize int64
	// Timeout of a single part transfer.
	PartTimeout time.Duration
	// Timeout of the best-effort release call.
	ReleaseTimeout time.Duration
	Logger         Logger
}

func (c Config) withDefaults() Config {
	if c.PartSize <= 0 {
		c.PartSize = DefaultPartSize
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.PartTimeout <= 0 {
		c.PartTimeout = DefaultPartTimeout
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = DefaultReleaseTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}
