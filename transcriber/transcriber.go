// Package transcriber turns a live PCM feed into incremental transcript
// events through a continuous, interim-enabled recognition stream. The
// stream is expected to die regularly (engine timeouts, network blips);
// the session wraps it in an auto-restart state machine so callers only
// ever see start, feed, events, stop.
package transcriber

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"nhooyr.io/websocket"
)

// Update is one recognition callback: a revisable interim or a finalized
// segment the engine will not touch again.
type Update struct {
	Text    string
	IsFinal bool
}

// Stream is a live recognition connection.
type Stream interface {
	Send(pcm []byte) error
	Recv() (Update, error)
	Close() error
}

// Dialer opens recognition streams.
type Dialer interface {
	Name() string
	Dial(ctx context.Context) (Stream, error)
}

// Line is one finalized transcript segment with its arrival time.
type Line struct {
	Text string
	At   time.Time
}

// Event is emitted to the session consumer. Final is empty for pure
// interim updates; Recent holds the most recent finalized segments.
type Event struct {
	Final   string
	Interim string
	Recent  []Line
}

// Recoverable classifies a stream failure. Network-ish errors and normal
// engine hangups warrant an automatic restart; anything else stops the
// session until it is explicitly re-enabled.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusAbnormalClosure:
		return true
	}
	return false
}
