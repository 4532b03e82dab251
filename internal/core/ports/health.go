package ports

import "context"

// HealthChecker is one dependency reported by GET /health.
type HealthChecker interface {
	Name() string
	// Ping returns nil when the dependency can serve payment traffic.
	Ping(ctx context.Context) error
}
