package domain

import "time"

// ServiceHealth is one dependency's health probe result.
type ServiceHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the aggregate readiness report.
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Services  []ServiceHealth `json:"services,omitempty"`
}

// OpsMetrics is a point-in-time summary of operational counters for the
// GET /ops/metrics endpoint.
type OpsMetrics struct {
	Deposits       int64   `json:"deposits"`
	Withdrawals    int64   `json:"withdrawals"`
	Transfers      int64   `json:"transfers"`
	FailedOps      int64   `json:"failed_ops"`
	ErrorRate      float64 `json:"error_rate"`
	LoginSuccesses int64   `json:"login_successes"`
	LoginFailures  int64   `json:"login_failures"`
	LoginsLocked   int64   `json:"logins_locked"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	Period         string  `json:"period"`
}
