package health

import "context"

// Pinger checks store availability (redis, postgres).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks remote provider availability (embedding, LLM).
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
