package domain

// ============================================================
// Health API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// QuoteMetrics is returned by GET /v1/metrics/quotes.
type QuoteMetrics struct {
	TotalRuns      int64   `json:"totalRuns"`
	ErrorRate      float64 `json:"errorRate"`
	FallbackRate   float64 `json:"fallbackRate"`
	ExhaustionRate float64 `json:"exhaustionRate"`
	RejectedTotal  int64   `json:"rejectedTotal"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	Period         string  `json:"period"`
}
