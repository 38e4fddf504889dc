//go:build !darwin

package tray

import (
	"github.com/energye/systray"

	"hark/state"
)

var mTranscribe *systray.MenuItem

func Init() <-chan struct{} {
	start, _ := systray.RunWithExternalLoop(onReady, onExit)
	start()
	return quitCh
}

func onReady() {
	systray.SetIcon(iconInactiveHi)
	systray.SetTooltip(tooltipInactive)

	mTranscribe = systray.AddMenuItemCheckbox("Transcribe Active Tab", "Stream live transcription for the active meeting tab", false)
	mTranscribe.Click(fireToggle)

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "")
	mQuit.Click(fireQuit)
}

func onExit() {
	Quit()
}

func updateStatusIcon(st state.Status) {
	switch st {
	case state.Speaking:
		systray.SetIcon(iconSpeakingHi)
	case state.Listening:
		systray.SetIcon(iconListeningHi)
	default:
		systray.SetIcon(iconInactiveHi)
	}
}

func updateTooltip(msg string) {
	systray.SetTooltip(msg)
}

func updateTranscribeItem(on bool) {
	if mTranscribe == nil {
		return
	}
	if on {
		mTranscribe.Check()
	} else {
		mTranscribe.Uncheck()
	}
}
