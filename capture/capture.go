// Package capture is the isolated capture context: it turns platform
// stream identifiers into live PCM, meters the audio for activity, and
// optionally feeds the same stream into a recognition session. Capture
// handles are scarce OS resources; every start for a tab that already has
// a session replaces it, never stacks.
package capture

import "strings"

const (
	SampleRate = 16000
	Channels   = 1
)

type DataCallback func(data []byte, frameCount uint32)

type Config struct {
	SampleRate uint32
	Channels   uint32
}

// Context produces capture devices from opaque per-tab stream identifiers.
// Creating one is expensive; the monitor keeps a single context alive for
// its whole lifetime.
type Context interface {
	NewCapture(streamID string, cfg Config) (Device, error)
	Close()
}

type Device interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// monitorSourceName maps a browser stream id onto the platform's monitor
// source naming convention. An empty id selects the default source.
func monitorSourceName(streamID string) string {
	return strings.TrimPrefix(streamID, "tab:")
}
