package testutil

import (
	"time"

	"loki-watch/internal/models"
)

// MockConfig creates a configuration for testing without a real Loki instance
func MockConfig() models.Config {
	return models.Config{
		URL:              "http://localhost:3100",
		AuthToken:        "mock-auth-token",
		TenantID:         "test-tenant",
		ConnectTimeout:   5 * time.Second,
		ReadTimeout:      10 * time.Second,
		RequestRateLimit: 100,
		RequestRateBurst: 100,
	}
}
