package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sample is the outcome of one detection pass over a snapshot.
type Sample struct {
	HasAudio   bool
	IsSpeaking bool
}

// MuteRule locates a mute/microphone control. Rules run in priority order;
// the first one returning a non-nil selection wins.
type MuteRule struct {
	Name string
	Find func(doc *goquery.Document) *goquery.Selection
}

func attrProbe(name, attr, substr string) MuteRule {
	return MuteRule{
		Name: name,
		Find: func(doc *goquery.Document) *goquery.Selection {
			return findByAttrSubstr(doc, attr, substr)
		},
	}
}

// MuteRules is the default probe chain for the microphone control:
// tooltip text, aria-label text, a custom data attribute, then a linear
// scan of button-like elements by label text.
var MuteRules = []MuteRule{
	attrProbe("tooltip-microphone", "data-tooltip", "microphone"),
	attrProbe("aria-microphone", "aria-label", "microphone"),
	attrProbe("tooltip-mic", "data-tooltip", "mic"),
	attrProbe("aria-mic", "aria-label", "mic"),
	attrProbe("data-mute-button", "data-mute-button", ""),
	{Name: "button-scan", Find: scanButtons},
}

func scanButtons(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("button, [role=button]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(s.Text() + " " + s.AttrOr("aria-label", "") + " " + s.AttrOr("data-tooltip", ""))
		if strings.Contains(label, "microphone") || strings.Contains(label, "mic") {
			found = s
			return false
		}
		return true
	})
	return found
}

// FindMuteControl runs the rule chain and returns the first match, along
// with the rule name that found it.
func FindMuteControl(doc *goquery.Document) (*goquery.Selection, string) {
	for _, r := range MuteRules {
		if sel := r.Find(doc); sel != nil && sel.Length() > 0 {
			return sel, r.Name
		}
	}
	return nil, ""
}

// ControlMuted reports whether a found microphone control indicates the
// muted state. Any single indicator holding is enough.
func ControlMuted(sel *goquery.Selection) bool {
	if v, ok := sel.Attr("aria-pressed"); ok && v == "false" {
		return true
	}
	if sel.HasClass("muted") {
		return true
	}
	if v, ok := sel.Attr("data-is-muted"); ok && v == "true" {
		return true
	}
	label := strings.ToLower(sel.AttrOr("aria-label", "") + " " + sel.AttrOr("data-tooltip", ""))
	if strings.Contains(label, "unmute") || strings.Contains(label, "turn on") {
		return true
	}
	// A descendant tooltip saying "unmute" also marks the control muted.
	muted := false
	sel.Find("[data-tooltip], [aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		l := strings.ToLower(s.AttrOr("aria-label", "") + " " + s.AttrOr("data-tooltip", ""))
		if strings.Contains(l, "unmute") || strings.Contains(l, "turn on") {
			muted = true
			return false
		}
		return true
	})
	return muted
}

// speakingSelectors match visual "someone is audible" cues.
var speakingSelectors = []string{
	`[data-speaking="true"]`,
	".speaking",
	".audio-wave",
	".sound-indicator",
	`[data-audio-state="speaking"]`,
	".participant-speaking",
}

func hasSpeakingIndicator(doc *goquery.Document) bool {
	for _, sel := range speakingSelectors {
		active := false
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !hidden(s) {
				active = true
				return false
			}
			return true
		})
		if active {
			return true
		}
	}
	// aria-label mentioning "speaking" counts too.
	if sel := findByAttrSubstr(doc, "aria-label", "speaking"); sel != nil && !hidden(sel) {
		return true
	}
	return false
}

func hasPlayingMedia(snap *Snapshot) bool {
	for _, m := range snap.Media {
		if !m.Paused && !m.Muted && m.Volume > 0 && m.Advanced {
			return true
		}
	}
	return false
}

// identityTransforms are CSS transform values that mean "level bar at rest".
var identityTransforms = map[string]bool{
	"":                   true,
	"none":               true,
	"matrix(1,0,0,1,0,0)": true,
	"scale(1)":           true,
	"scaley(1)":          true,
	"translatey(0px)":    true,
}

func hasAnimatedVolumeBar(snap *Snapshot) bool {
	for _, t := range snap.VolumeTransforms {
		t = strings.ToLower(strings.ReplaceAll(t, " ", ""))
		if !identityTransforms[t] {
			return true
		}
	}
	return false
}

// Evaluate runs all detection rules over one snapshot.
//
// isSpeaking is conservative: it requires a discovered microphone control
// that is not muted; no control found means false. hasAudio is the OR of
// three independent heuristics (visual indicator, playing media element,
// animated volume bar), each individually unreliable.
func Evaluate(snap *Snapshot) Sample {
	var smp Sample

	if ctrl, _ := FindMuteControl(snap.doc); ctrl != nil {
		smp.IsSpeaking = !ControlMuted(ctrl)
	}

	smp.HasAudio = hasSpeakingIndicator(snap.doc) ||
		hasPlayingMedia(snap) ||
		hasAnimatedVolumeBar(snap)

	return smp
}
