package services

import (
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/taskwire/taskwire-client/internal/core/domain"
)

// PresencePublisherConfig tunes the outbound cursor throttle.
type PresencePublisherConfig struct {
	Enabled     bool
	CursorRPS   float64
	CursorBurst int
}

// DefaultPresencePublisherConfig allows 20 cursor samples per second with
// a small burst, plenty for a smooth remote cursor.
func DefaultPresencePublisherConfig() PresencePublisherConfig {
	return PresencePublisherConfig{
		Enabled:     true,
		CursorRPS:   20,
		CursorBurst: 5,
	}
}

// PresencePublisher emits this user's own presence signals. Cursor moves
// arrive at pointer-event frequency, so they pass through a rate limiter;
// samples over the budget are simply dropped — presence is best-effort
// and the next sample supersedes them anyway.
type PresencePublisher struct {
	bus     *EventBus
	userID  uuid.UUID
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPresencePublisher creates a publisher for the given user.
func NewPresencePublisher(bus *EventBus, userID uuid.UUID, cfg PresencePublisherConfig, logger *slog.Logger) *PresencePublisher {
	var limiter *rate.Limiter
	if cfg.Enabled {
		rps := cfg.CursorRPS
		if rps <= 0 {
			rps = DefaultPresencePublisherConfig().CursorRPS
		}
		burst := cfg.CursorBurst
		if burst <= 0 {
			burst = DefaultPresencePublisherConfig().CursorBurst
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &PresencePublisher{
		bus:     bus,
		userID:  userID,
		limiter: limiter,
		logger:  logger.With("component", "presence_publisher"),
	}
}

// Cursor publishes the user's pointer position, subject to the throttle.
func (p *PresencePublisher) Cursor(x, y float64) {
	if p.limiter != nil && !p.limiter.Allow() {
		return
	}
	p.bus.Emit(domain.EventUserCursor, domain.CursorPayload{UserID: p.userID, X: x, Y: y})
}

// StartTyping announces that the user started typing on a task.
func (p *PresencePublisher) StartTyping(taskID int64) {
	p.bus.Emit(domain.EventUserTypingStart, domain.TypingPayload{UserID: p.userID, TaskID: taskID})
}

// StopTyping announces that the user stopped typing on a task.
func (p *PresencePublisher) StopTyping(taskID int64) {
	p.bus.Emit(domain.EventUserTypingStop, domain.TypingPayload{UserID: p.userID, TaskID: taskID})
}
