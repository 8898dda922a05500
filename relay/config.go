package relay

import (
	"log/slog"
	"time"
)

// DefaultSessionTimeout bounds a single relay session when Config leaves
// SessionTimeout unset.
const DefaultSessionTimeout = 30 * time.Second

// Config is the relay configuration.
type Config struct {
	// SessionTimeout caps the wall time of one session. When it expires the
	// client receives an error frame. Zero means DefaultSessionTimeout; a
	// negative value disables the cap.
	SessionTimeout time.Duration

	Logger *slog.Logger
}
