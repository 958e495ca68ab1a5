package server

import "time"

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	DataDir string

	BufferSize     int // buffer pool size in pages
	MergeThreshold int // tail records per range before an async merge triggers; 0 = table.DefaultMergeThreshold

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64

	EnableGraphQL     bool
	EnableCompression bool // zstd or gzip wire compression for responses, via Accept-Encoding negotiation

	AdminToken string // plaintext admin bearer token; empty disables auth (local/dev only)

	MetricsNamespace string
}

// DefaultConfig returns sane defaults matching spec.md §6's
// BUFFERPOOL_CAPACITY and MERGE_THRESHOLD constants.
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              8080,
		DataDir:           "./data",
		BufferSize:        10000,
		MergeThreshold:    100000,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxRequestSize:    10 * 1024 * 1024,
		EnableGraphQL:     true,
		EnableCompression: true,
		MetricsNamespace:  "lstore",
	}
}
