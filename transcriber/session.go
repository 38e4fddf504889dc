package transcriber

import (
	"context"
	"sync"
	"time"

	"hark/log"
)

// State reflects where a session is in its lifecycle.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Backoff
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Backoff:
		return "backoff"
	default:
		return "stopped"
	}
}

const feedBuffer = 16

// eventRecent is how many finalized segments ride along on each event.
// The full history stays in the buffer.
const eventRecent = 5

// Session keeps one recognition stream alive for as long as it is
// enabled. Recoverable stream failures and natural engine hangups are
// answered with a delayed redial; a fatal error parks the session in
// Stopped until the next Start. Finalized segments accumulate in a
// bounded history; interims replace each other wholesale.
type Session struct {
	dialer       Dialer
	emit         func(Event)
	restartDelay time.Duration

	mu      sync.Mutex
	state   State
	enabled bool
	gen     int
	buf     *Buffer
	interim string
	feed    chan []byte
	cancel  context.CancelFunc
}

func NewSession(dialer Dialer, emit func(Event)) *Session {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{
		dialer:       dialer,
		emit:         emit,
		restartDelay: time.Second,
		buf:          NewBuffer(BufferCap),
	}
}

// Start enables the session and begins dialing. Calling Start on an
// already enabled session is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.state = Starting
	s.gen++
	gen := s.gen
	s.buf = NewBuffer(BufferCap)
	s.interim = ""
	s.feed = make(chan []byte, feedBuffer)
	feed := s.feed
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, gen, feed)
}

// Stop disables the session, tears down the stream, and discards the
// accumulated history and any pending interim.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	s.state = Stopped
	s.gen++
	s.buf = NewBuffer(BufferCap)
	s.interim = ""
	s.feed = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Feed hands PCM to the live stream. Audio arriving while the stream is
// down or the send queue is full is dropped.
func (s *Session) Feed(pcm []byte) {
	s.mu.Lock()
	feed := s.feed
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled || feed == nil {
		return
	}

	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	select {
	case feed <- buf:
	default:
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Session) run(ctx context.Context, gen int, feed <-chan []byte) {
	for {
		stream, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !Recoverable(err) {
				log.Errorf("%s: dial failed, giving up: %v", s.dialer.Name(), err)
				s.halt(gen)
				return
			}
			log.RecognizerRestart(err.Error())
			if !s.pause(ctx, gen) {
				return
			}
			continue
		}

		s.setState(gen, Running)
		err = s.pump(ctx, gen, stream, feed)
		stream.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil && !Recoverable(err) {
			log.Errorf("%s: stream failed, giving up: %v", s.dialer.Name(), err)
			s.halt(gen)
			return
		}
		if err != nil {
			log.RecognizerRestart(err.Error())
		} else {
			log.RecognizerRestart("stream ended")
		}
		if !s.pause(ctx, gen) {
			return
		}
	}
}

// pump runs one stream to completion: PCM out of the feed queue, updates
// off the wire.
func (s *Session) pump(ctx context.Context, gen int, stream Stream, feed <-chan []byte) error {
	recvErr := make(chan error, 1)
	go func() {
		for {
			u, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			s.handle(gen, u)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			return err
		case pcm := <-feed:
			if err := stream.Send(pcm); err != nil {
				return err
			}
		}
	}
}

// handle folds one recognition update into the session state. Events go
// out only when there is something new to say: a nonempty final, or an
// interim that differs from the last one.
func (s *Session) handle(gen int, u Update) {
	s.mu.Lock()
	if gen != s.gen || !s.enabled {
		s.mu.Unlock()
		return
	}

	var ev Event
	fire := false
	if u.IsFinal && u.Text != "" {
		s.buf.Push(u.Text, time.Now())
		s.interim = ""
		ev = Event{Final: u.Text, Recent: s.buf.Recent(eventRecent)}
		fire = true
	} else if u.Text != s.interim {
		s.interim = u.Text
		ev = Event{Interim: u.Text, Recent: s.buf.Recent(eventRecent)}
		fire = true
	}
	s.mu.Unlock()

	if fire {
		s.emit(ev)
	}
}

func (s *Session) setState(gen int, st State) {
	s.mu.Lock()
	if gen == s.gen && s.enabled {
		s.state = st
	}
	s.mu.Unlock()
}

// halt marks the session stopped after a fatal error. A later Start
// brings it back.
func (s *Session) halt(gen int) {
	s.mu.Lock()
	if gen == s.gen && s.enabled {
		s.enabled = false
		s.state = Stopped
		s.feed = nil
	}
	s.mu.Unlock()
}

// pause waits out the restart delay. Returns false if the session was
// cancelled or superseded in the meantime.
func (s *Session) pause(ctx context.Context, gen int) bool {
	s.setState(gen, Backoff)
	t := time.NewTimer(s.restartDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	}
	s.mu.Lock()
	ok := gen == s.gen && s.enabled
	s.mu.Unlock()
	return ok
}
