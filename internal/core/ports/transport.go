package ports

import (
	"context"

	"github.com/taskwire/taskwire-client/internal/core/domain"
)

// TransportCallbacks are invoked by the transport to drive the event bus
// state machine. Any callback may be nil.
type TransportCallbacks struct {
	// OnOpen fires once the transport is established and ready to send.
	OnOpen func()

	// OnClose fires when the transport drops, with the reason. It fires at
	// most once per established transport.
	OnClose func(reason error)

	// OnMessage fires for every decoded inbound event.
	OnMessage func(event domain.Event)
}

// Transport is the boundary with the push-event service. Implementations
// own exactly one physical connection at a time.
type Transport interface {
	// SetCallbacks registers the callback set. Must be called before
	// Connect.
	SetCallbacks(cb TransportCallbacks)

	// Connect establishes the transport using the given credential. It
	// returns once the connection is open or has failed; on success the
	// OnOpen callback fires.
	Connect(ctx context.Context, credential string) error

	// Send transmits one event, fire-and-forget.
	Send(event domain.Event) error

	// Disconnect tears down the transport. Safe to call when not
	// connected.
	Disconnect()
}

// CredentialSource supplies the bearer token used to authenticate both the
// event-bus connection and REST calls.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}
