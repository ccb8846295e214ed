package models

import "time"

// Config holds the resolved runtime configuration. All values are concrete
// primitives by the time the core sees them; flag/env/file resolution happens
// in main.
type Config struct {
	// Loki connection settings
	URL       string // Loki base URL, e.g. http://localhost:3100
	AuthToken string // Bearer token if Loki is secured
	TenantID  string // X-Scope-OrgID header value for multi-tenant setups

	// HTTP client settings
	ConnectTimeout time.Duration // connection timeout
	ReadTimeout    time.Duration // overall request timeout
	Debug          bool          // log outgoing requests

	// Rate limiting configuration
	RequestRateLimit float64 // maximum requests per second against Loki
	RequestRateBurst int     // maximum burst capacity for requests
}

// TriggerConfig describes one recurring watch: the query to poll and how its
// dedup state is scoped and bounded.
type TriggerConfig struct {
	Query      string        // LogQL query to monitor
	Interval   time.Duration // polling interval
	MaxRecords int           // limit per poll cycle
	Since      string        // lookback window, e.g. "10m"
	StateKey   string        // key under which dedup state is persisted
	StateTTL   time.Duration // maximum age of a dedup state entry
}
