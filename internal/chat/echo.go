package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// DefaultEchoGreeting is the first frame an echo session sends.
const DefaultEchoGreeting = "Hi from server"

// EchoReply is the transform applied to every text frame on the echo endpoint.
func EchoReply(msg string) string {
	return "You said: " + msg
}

// Echo answers each text frame on a connection with EchoReply. It keeps no
// state between connections.
type Echo struct {
	greeting string
	log      zerolog.Logger
}

// NewEcho returns an Echo that opens every session with greeting.
// An empty greeting selects DefaultEchoGreeting.
func NewEcho(greeting string, logger zerolog.Logger) *Echo {
	if greeting == "" {
		greeting = DefaultEchoGreeting
	}
	return &Echo{
		greeting: greeting,
		log:      logger.With().Str("component", "echo").Logger(),
	}
}

// Serve runs one echo session until the peer closes, ctx is cancelled or the
// transport fails. Closure is a normal end and yields nil. Serve closes conn
// before returning.
func (e *Echo) Serve(ctx context.Context, conn Connection) error {
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, ErrClosed) {
			e.log.Debug().Err(cerr).Msg("Error closing echo connection")
		}
	}()

	if err := conn.Send(ctx, Text(e.greeting)); err != nil {
		return closedIsNormal(err)
	}

	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return closedIsNormal(err)
		}

		switch frame.Kind {
		case FrameText:
			if err := conn.Send(ctx, Text(EchoReply(frame.Text))); err != nil {
				return closedIsNormal(err)
			}
		case FrameClose:
			return nil
		default:
			e.log.Debug().Stringer("kind", frame.Kind).Msg("Ignoring non-text frame")
		}
	}
}

func closedIsNormal(err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
