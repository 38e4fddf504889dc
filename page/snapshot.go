// Package page infers mute and audio-activity state from DOM snapshots of
// a meeting tab. The markup is third-party and unversioned, so everything
// here is heuristic: probes are ordered, first match wins, and a failed
// pass means "no signal this round", never an error surfaced upward.
package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"hark/bus"
)

// Snapshot is one immutable observation of a meeting page: the parsed
// markup plus playback metadata the companion reports alongside it.
type Snapshot struct {
	TabID            int
	URL              string
	Visible          bool
	Media            []bus.MediaState
	VolumeTransforms []string

	doc *goquery.Document
}

func Parse(msg bus.DomSnapshotMsg) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Snapshot{
		TabID:            msg.TabID,
		URL:              msg.URL,
		Visible:          msg.Visible,
		Media:            msg.Media,
		VolumeTransforms: msg.VolumeTransforms,
		doc:              doc,
	}, nil
}

// hidden reports whether an element is visually suppressed.
func hidden(s *goquery.Selection) bool {
	if v, ok := s.Attr("aria-hidden"); ok && v == "true" {
		return true
	}
	style, ok := s.Attr("style")
	if !ok {
		return false
	}
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// findByAttrSubstr returns the first element whose attribute value contains
// substr case-insensitively, in document order.
func findByAttrSubstr(doc *goquery.Document, attr, substr string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(attr)
		if substr == "" || strings.Contains(strings.ToLower(v), substr) {
			found = s
			return false
		}
		return true
	})
	return found
}
