package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lstore-db/lstore/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	dataDir := flag.String("data-dir", "./data", "Data directory for database storage")
	bufferSize := flag.Int("buffer-size", 10000, "Buffer pool size in pages (1 page = 4KB)")
	mergeThreshold := flag.Int("merge-threshold", 0, "Tail-record count per page range that triggers an async merge (0 = use table default)")
	enableGraphQL := flag.Bool("graphql", false, "Enable the read-only GraphQL endpoint (/graphql)")
	enableCompression := flag.Bool("compression", true, "Enable wire-level response compression (zstd/gzip)")
	adminToken := flag.String("admin-token", "", "Bearer token required for write requests (empty disables auth)")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.DataDir = *dataDir
	config.BufferSize = *bufferSize
	config.MergeThreshold = *mergeThreshold
	config.EnableGraphQL = *enableGraphQL
	config.EnableCompression = *enableCompression
	config.AdminToken = *adminToken

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
