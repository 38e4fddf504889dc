package capture

import (
	"sync"
	"sync/atomic"
)

// FakeContext is a test double that records session lifecycle and lets
// tests push PCM by hand.
type FakeContext struct {
	mu       sync.Mutex
	devices  []*FakeDevice
	openErr  error
	closed   bool
	OpenedID []string
}

func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) FailNextOpen(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *FakeContext) NewCapture(streamID string, _ Config) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		err := f.openErr
		f.openErr = nil
		return nil, err
	}
	d := &FakeDevice{streamID: streamID}
	f.devices = append(f.devices, d)
	f.OpenedID = append(f.OpenedID, streamID)
	return d, nil
}

func (f *FakeContext) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Devices returns every device ever opened, including closed ones.
func (f *FakeContext) Devices() []*FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeDevice(nil), f.devices...)
}

// LiveDevices counts devices that were started and not yet closed.
func (f *FakeContext) LiveDevices() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.devices {
		if d.started.Load() && !d.closed.Load() {
			n++
		}
	}
	return n
}

type FakeDevice struct {
	streamID string
	callback atomic.Pointer[DataCallback]
	started  atomic.Bool
	closed   atomic.Bool
}

func (d *FakeDevice) Start() error {
	d.started.Store(true)
	return nil
}

func (d *FakeDevice) Stop() {
	d.started.Store(false)
}

func (d *FakeDevice) Close() {
	d.Stop()
	d.closed.Store(true)
}

func (d *FakeDevice) SetCallback(cb DataCallback) {
	d.callback.Store(&cb)
}

func (d *FakeDevice) ClearCallback() {
	d.callback.Store(nil)
}

func (d *FakeDevice) StreamID() string { return d.streamID }

// Push delivers PCM to the registered callback, as the platform would.
func (d *FakeDevice) Push(pcm []byte) {
	cb := d.callback.Load()
	if cb != nil {
		(*cb)(pcm, uint32(len(pcm)/2))
	}
}
