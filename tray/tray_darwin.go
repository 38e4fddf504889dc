//go:build darwin

package tray

import (
	"github.com/energye/systray"
	"golang.design/x/hotkey/mainthread"

	"hark/state"
)

var mTranscribe *systray.MenuItem

func Init() <-chan struct{} {
	start, _ := systray.RunWithExternalLoop(onReady, onExit)
	done := make(chan struct{})
	mainthread.Call(func() {
		start()
		close(done)
	})
	<-done
	return quitCh
}

func onReady() {
	systray.SetTemplateIcon(iconInactiveHi, iconInactive)
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
		systray.SetTemplateIcon(iconInactiveHi, iconInactive)
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
