package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// InferenceChecker reports whether the inference service is ready.
type InferenceChecker interface {
	Healthy(ctx context.Context) bool
}
