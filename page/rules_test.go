package page

import (
	"testing"

	"hark/bus"
)

func parseHTML(t *testing.T, html string, msg bus.DomSnapshotMsg) *Snapshot {
	t.Helper()
	msg.HTML = html
	snap, err := Parse(msg)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestMuteControlByAriaLabel(t *testing.T) {
	snap := parseHTML(t, `<body><button aria-label="Turn off microphone" aria-pressed="true"></button></body>`, bus.DomSnapshotMsg{})
	smp := Evaluate(snap)
	if !smp.IsSpeaking {
		t.Error("unmuted microphone control should mean speaking")
	}
}

func TestMuteControlAriaPressedFalse(t *testing.T) {
	snap := parseHTML(t, `<body><button aria-label="microphone" aria-pressed="false"></button></body>`, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error("aria-pressed=false should mean muted")
	}
}

func TestMuteControlMutedClass(t *testing.T) {
	snap := parseHTML(t, `<body><button class="muted" data-tooltip="Microphone"></button></body>`, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error("muted class should mean muted")
	}
}

func TestMuteControlUnmuteLabel(t *testing.T) {
	snap := parseHTML(t, `<body><button aria-label="Unmute microphone"></button></body>`, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error(`"unmute" label should mean muted`)
	}
}

func TestMuteControlTurnOnLabel(t *testing.T) {
	snap := parseHTML(t, `<body><div role="button" data-tooltip="Turn on microphone (ctrl+d)"></div></body>`, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error(`"turn on" tooltip should mean muted`)
	}
}

func TestMuteControlUnmuteDescendant(t *testing.T) {
	html := `<body><button aria-label="microphone settings"><span data-tooltip="Unmute"></span></button></body>`
	snap := parseHTML(t, html, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error("descendant unmute tooltip should mean muted")
	}
}

func TestNoMuteControlMeansNotSpeaking(t *testing.T) {
	snap := parseHTML(t, `<body><button aria-label="Leave call"></button></body>`, bus.DomSnapshotMsg{})
	if Evaluate(snap).IsSpeaking {
		t.Error("no microphone control found should mean not speaking")
	}
}

func TestMuteControlButtonScanFallback(t *testing.T) {
	// No tooltip/aria probes match; the linear button scan should find it
	// by visible label text.
	snap := parseHTML(t, `<body><div role="button">Mic settings</div></body>`, bus.DomSnapshotMsg{})
	ctrl, rule := FindMuteControl(snap.doc)
	if ctrl == nil {
		t.Fatal("expected fallback scan to find the control")
	}
	if rule != "button-scan" {
		t.Errorf("rule = %q, want button-scan", rule)
	}
}

func TestMuteRuleOrder(t *testing.T) {
	// Both a tooltip probe target and a scannable button exist; the
	// tooltip probe is earlier in the chain and must win.
	html := `<body><button>mic</button><div data-tooltip="Mute microphone" aria-pressed="true"></div></body>`
	snap := parseHTML(t, html, bus.DomSnapshotMsg{})
	_, rule := FindMuteControl(snap.doc)
	if rule != "tooltip-microphone" {
		t.Errorf("rule = %q, want tooltip-microphone", rule)
	}
}

func TestSpeakingIndicatorSelectors(t *testing.T) {
	cases := []string{
		`<div data-speaking="true"></div>`,
		`<div class="speaking"></div>`,
		`<div class="audio-wave"></div>`,
		`<div class="sound-indicator"></div>`,
		`<div data-audio-state="speaking"></div>`,
		`<div class="participant-speaking"></div>`,
		`<div aria-label="Alice is speaking"></div>`,
	}
	for _, html := range cases {
		snap := parseHTML(t, "<body>"+html+"</body>", bus.DomSnapshotMsg{})
		if !Evaluate(snap).HasAudio {
			t.Errorf("expected hasAudio for %s", html)
		}
	}
}

func TestHiddenIndicatorIgnored(t *testing.T) {
	cases := []string{
		`<body><div class="speaking" style="display: none"></div></body>`,
		`<body><div class="speaking" style="visibility:hidden"></div></body>`,
		`<body><div class="speaking" aria-hidden="true"></div></body>`,
	}
	for _, html := range cases {
		snap := parseHTML(t, html, bus.DomSnapshotMsg{})
		if Evaluate(snap).HasAudio {
			t.Errorf("hidden indicator should not count: %s", html)
		}
	}
}

func TestPlayingMediaElement(t *testing.T) {
	playing := bus.MediaState{Paused: false, Muted: false, Volume: 0.8, Advanced: true}
	snap := parseHTML(t, "<body></body>", bus.DomSnapshotMsg{Media: []bus.MediaState{playing}})
	if !Evaluate(snap).HasAudio {
		t.Error("playing media element should mean hasAudio")
	}
}

func TestSilentMediaElements(t *testing.T) {
	cases := []bus.MediaState{
		{Paused: true, Volume: 1, Advanced: true},
		{Muted: true, Volume: 1, Advanced: true},
		{Volume: 0, Advanced: true},
		{Volume: 1, Advanced: false},
	}
	for i, m := range cases {
		snap := parseHTML(t, "<body></body>", bus.DomSnapshotMsg{Media: []bus.MediaState{m}})
		if Evaluate(snap).HasAudio {
			t.Errorf("case %d: %+v should not mean hasAudio", i, m)
		}
	}
}

func TestAnimatedVolumeBar(t *testing.T) {
	snap := parseHTML(t, "<body></body>", bus.DomSnapshotMsg{
		VolumeTransforms: []string{"scaleY(0.63)"},
	})
	if !Evaluate(snap).HasAudio {
		t.Error("non-identity transform should mean hasAudio")
	}
}

func TestRestingVolumeBar(t *testing.T) {
	snap := parseHTML(t, "<body></body>", bus.DomSnapshotMsg{
		VolumeTransforms: []string{"none", "matrix(1, 0, 0, 1, 0, 0)", "scaleY(1)", ""},
	})
	if Evaluate(snap).HasAudio {
		t.Error("identity transforms should not mean hasAudio")
	}
}

func TestSpeakingAndAudioIndependent(t *testing.T) {
	html := `<body><button aria-label="microphone" aria-pressed="true"></button><div class="speaking"></div></body>`
	snap := parseHTML(t, html, bus.DomSnapshotMsg{})
	smp := Evaluate(snap)
	if !smp.IsSpeaking || !smp.HasAudio {
		t.Errorf("got %+v, want both true", smp)
	}
}
