package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ParticipantID identifies a room member. It is assigned on join and never
// reused.
type ParticipantID string

func newParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// State is a participant's position in its lifecycle.
type State int32

const (
	// StateJoining is a participant that is not registered yet.
	StateJoining State = iota
	// StateActive is a registered participant whose loops are running.
	StateActive
	// StateLeaving is a participant that was removed and is winding down.
	StateLeaving
	// StateGone is terminal: both loops stopped and the connection is closed.
	StateGone
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Participant binds one Connection to the room through a bounded mailbox.
// Only its own receive and send loops touch the connection.
type Participant struct {
	id      ParticipantID
	conn    Connection
	mailbox *mailbox
	limiter *rate.Limiter
	log     zerolog.Logger

	state  atomic.Int32
	drops  atomic.Int64
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}
}

func newParticipant(ctx context.Context, id ParticipantID, conn Connection, opts roomOptions, logger zerolog.Logger) *Participant {
	pctx, cancel := context.WithCancel(ctx)
	return &Participant{
		id:      id,
		conn:    conn,
		mailbox: newMailbox(opts.mailboxSize),
		limiter: newRateLimiter(opts.rateBurst, opts.rateInterval),
		log:     logger.With().Str("participant", string(id)).Logger(),
		ctx:     pctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// newRateLimiter allows burst messages per interval, starting with a full
// bucket. It returns nil when limiting is disabled.
func newRateLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}

// ID returns the participant's identity.
func (p *Participant) ID() ParticipantID {
	return p.id
}

// State returns the current lifecycle state.
func (p *Participant) State() State {
	return State(p.state.Load())
}

// Done is closed once both loops have stopped and the connection is closed.
func (p *Participant) Done() <-chan struct{} {
	return p.done
}

func (p *Participant) setState(s State) {
	p.state.Store(int32(s))
}

// run supervises the loop pair. Whichever loop ends first leaves the room,
// which cancels the other one.
func (p *Participant) run(r *Room) {
	defer r.wg.Done()

	g, ctx := errgroup.WithContext(p.ctx)
	g.Go(func() error {
		defer r.Leave(p.id)
		return p.receiveLoop(ctx, r)
	})
	g.Go(func() error {
		defer r.Leave(p.id)
		return p.sendLoop(ctx)
	})

	err := g.Wait()
	p.finish(err)
}

func (p *Participant) receiveLoop(ctx context.Context, r *Room) error {
	for {
		frame, err := p.conn.Receive(ctx)
		if err != nil {
			return err
		}

		switch frame.Kind {
		case FrameText:
			if !p.allow() {
				p.log.Warn().Msg("Rate limit exceeded; discarding message")
				continue
			}
			r.Broadcast(p.id, frame.Text)
		case FrameClose:
			return nil
		default:
			p.log.Debug().Stringer("kind", frame.Kind).Msg("Ignoring non-text frame")
		}
	}
}

func (p *Participant) sendLoop(ctx context.Context) error {
	for {
		frame, ok := p.mailbox.next(ctx)
		if !ok {
			return nil
		}
		if err := p.conn.Send(ctx, frame); err != nil {
			return err
		}
	}
}

func (p *Participant) allow() bool {
	return p.limiter == nil || p.limiter.Allow()
}

// stop moves the participant to Leaving and unblocks both loops. Only the
// first call has an effect.
func (p *Participant) stop() {
	p.stopOnce.Do(func() {
		p.setState(StateLeaving)
		p.cancel()
		p.mailbox.close()
		if err := p.conn.Close(); err != nil && !errors.Is(err, ErrClosed) {
			p.log.Debug().Err(err).Msg("Error closing connection")
		}
	})
}

// finish runs after both loops returned.
func (p *Participant) finish(err error) {
	p.stop()
	p.setState(StateGone)
	close(p.done)

	switch {
	case err == nil, errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		p.log.Debug().Msg("Participant loops stopped")
	default:
		p.log.Warn().Err(err).Msg("Participant loops stopped with error")
	}
}

func (p *Participant) recordDrop() int64 {
	return p.drops.Add(1)
}

func (p *Participant) resetDrops() {
	if p.drops.Load() != 0 {
		p.drops.Store(0)
	}
}
