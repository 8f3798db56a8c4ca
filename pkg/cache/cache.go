// Package cache provides short-TTL response caching for downstream calls,
// with an in-process backend for single-instance deployments and a Redis
// backend for sharing entries across gateway replicas.
package cache

import (
	"context"
	"time"
)

// ResponseCache stores serialized downstream responses under caller-chosen
// keys. A miss is (nil, false, nil); a non-nil error means the backend
// itself failed, which callers may treat as a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Stats is a snapshot of cache effectiveness counters
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}
