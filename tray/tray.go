// Package tray is the always-on visual indicator: a menu bar icon that
// mirrors the active tab's audio status and hosts the transcription
// toggle.
package tray

import (
	"sync"

	"hark/state"
)

const (
	tooltipSpeaking  = "You are speaking (microphone active)"
	tooltipListening = "Audio detected in meeting"
	tooltipInactive  = "No audio activity detected"
)

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	toggleCb func(bool)
	quitCb   func()

	stateMu      sync.Mutex
	transcribing bool
	current      state.Status
)

func OnToggleTranscribe(fn func(bool)) { toggleCb = fn }
func OnQuit(fn func())                 { quitCb = fn }

// SetStatus switches the icon and tooltip to the given status.
func SetStatus(st state.Status) {
	stateMu.Lock()
	if st == current {
		stateMu.Unlock()
		return
	}
	current = st
	stateMu.Unlock()
	updateStatusIcon(st)
	updateTooltip(statusTooltip(st))
}

// SetTranscribing reflects the transcription state in the menu checkbox.
func SetTranscribing(on bool) {
	stateMu.Lock()
	transcribing = on
	stateMu.Unlock()
	updateTranscribeItem(on)
}

func statusTooltip(st state.Status) string {
	switch st {
	case state.Speaking:
		return tooltipSpeaking
	case state.Listening:
		return tooltipListening
	default:
		return tooltipInactive
	}
}

func Quit() {
	closeOnce.Do(func() { close(quitCh) })
}

func fireToggle() {
	stateMu.Lock()
	transcribing = !transcribing
	on := transcribing
	cb := toggleCb
	stateMu.Unlock()
	updateTranscribeItem(on)
	if cb != nil {
		cb(on)
	}
}

func fireQuit() {
	if quitCb != nil {
		quitCb()
	}
	Quit()
}

// TabIndicator adapts the per-tab indicator interface onto the single
// tray icon: only the active tab's status is shown.
type TabIndicator struct {
	mu       sync.Mutex
	active   int
	statuses map[int]state.Status
}

func NewTabIndicator() *TabIndicator {
	return &TabIndicator{statuses: make(map[int]state.Status)}
}

func (t *TabIndicator) SetStatus(tabID int, st state.Status) {
	t.mu.Lock()
	t.statuses[tabID] = st
	show := tabID == t.active
	t.mu.Unlock()
	if show {
		SetStatus(st)
	}
}

func (t *TabIndicator) SetActive(tabID int) {
	t.mu.Lock()
	t.active = tabID
	st := t.statuses[tabID]
	t.mu.Unlock()
	SetStatus(st)
}

func (t *TabIndicator) Remove(tabID int) {
	t.mu.Lock()
	delete(t.statuses, tabID)
	show := tabID == t.active
	t.mu.Unlock()
	if show {
		SetStatus(state.Inactive)
	}
}
