// Package hotkey delivers the global transcription toggle chord
// (Ctrl+Shift+T) without the browser having focus.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
}
