package transcriber

import (
	"context"
	"io"
	"sync"
)

// FakeStream is a scriptable recognition stream for tests.
type FakeStream struct {
	mu        sync.Mutex
	sent      [][]byte
	updates   chan Update
	errc      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func NewFakeStream() *FakeStream {
	return &FakeStream{
		updates: make(chan Update, 16),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (f *FakeStream) Send(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *FakeStream) Recv() (Update, error) {
	select {
	case u := <-f.updates:
		return u, nil
	case err := <-f.errc:
		return Update{}, err
	case <-f.done:
		return Update{}, io.EOF
	}
}

func (f *FakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// Emit delivers one update to the session.
func (f *FakeStream) Emit(u Update) {
	select {
	case f.updates <- u:
	case <-f.done:
	}
}

// Fail makes the next Recv return err.
func (f *FakeStream) Fail(err error) {
	select {
	case f.errc <- err:
	case <-f.done:
	}
}

func (f *FakeStream) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// FakeDialer hands out FakeStreams and records every dial.
type FakeDialer struct {
	mu      sync.Mutex
	streams []*FakeStream
	dialErr error
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

func (d *FakeDialer) Name() string { return "fake" }

func (d *FakeDialer) Dial(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := NewFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

// FailDials makes every subsequent dial return err until cleared.
func (d *FakeDialer) FailDials(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *FakeDialer) StreamAt(i int) *FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}
