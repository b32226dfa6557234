package settings

// DB config keys and defaults for settings.
const (
	// RunMaxConcurrencyKey controls how many items of one order are mapped
	// in parallel.
	RunMaxConcurrencyKey = "RUN_MAX_CONCURRENCY"
	// DefaultRunMaxConcurrency is the fallback per-order item concurrency.
	DefaultRunMaxConcurrency = 4
)
