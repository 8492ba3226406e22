package api

import "time"

// Config holds server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string      // WebSocket origins (empty = same host only)
	SessionTTL     time.Duration // Idle time before a session is closed (0 = never)
	SweepInterval  time.Duration // How often idle sessions are checked
	MaxMessageSize int64         // Largest WebSocket message accepted
	MaxMessageRate int           // WebSocket messages per second per client
}

// DefaultConfig returns the configuration used by the serve command when
// only the address is given.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		SessionTTL:     30 * time.Minute,
		SweepInterval:  time.Minute,
		MaxMessageSize: 64 << 10,
		MaxMessageRate: 20,
	}
}
