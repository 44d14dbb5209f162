package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
)

// Get the value of environment variables.
func env(key string, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// Parse a human readable size such as "500MiB" into bytes.
func byteSize(s string) (int64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive: %q", s)
	}
	return n, nil
}

// Parse a duration such as "1h", falling back to def when invalid.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
