package state

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"hark/bus"
	"hark/log"
)

// Platform resolves a tab to the opaque stream identifier the capture
// context needs. The browser companion answers these over the bridge.
type Platform interface {
	MediaStreamID(ctx context.Context, tabID int) (string, error)
}

// Flags persists the per-tab transcription preference across restarts.
type Flags interface {
	Get(tabID int) (bool, error)
	Set(tabID int, enabled bool) error
	Delete(tabID int) error
}

// Config carries the coordinator tunables.
type Config struct {
	StaleAfter    time.Duration // audio state older than this is dead
	SweepEvery    time.Duration
	ToggleDelay   time.Duration // wait after capture start before re-enabling transcription
	StreamTimeout time.Duration // media stream id resolution deadline
	MeetingDomain string
}

func (c *Config) fill() {
	if c.StaleAfter == 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.SweepEvery == 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.ToggleDelay == 0 {
		c.ToggleDelay = 500 * time.Millisecond
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 10 * time.Second
	}
	if c.MeetingDomain == "" {
		c.MeetingDomain = "meet.google.com"
	}
}

// Coordinator is the service worker of the daemon: it owns the state
// store, reacts to every bus message, drives the indicator, and manages
// the capture lifecycle per tab.
type Coordinator struct {
	b     *bus.Bus
	store *StateStore
	ind   Indicator
	plat  Platform
	flags Flags
	cfg   Config

	mu        sync.Mutex
	gens      map[int]int
	activeTab int
}

func NewCoordinator(b *bus.Bus, store *StateStore, ind Indicator, plat Platform, flags Flags, cfg Config) *Coordinator {
	cfg.fill()
	if ind == nil {
		ind = NopIndicator{}
	}
	return &Coordinator{
		b:     b,
		store: store,
		ind:   ind,
		plat:  plat,
		flags: flags,
		cfg:   cfg,
		gens:  make(map[int]int),
	}
}

// Run consumes bus messages and runs the staleness sweep until ctx is
// done.
func (c *Coordinator) Run(ctx context.Context) {
	sub := c.b.Subscribe(256,
		bus.MeetDetected,
		bus.AudioStateChanged,
		bus.OffscreenAudioDetected,
		bus.TranscriptionUpdate,
		bus.ToggleTranscription,
		bus.TabUpdated,
		bus.TabRemoved,
		bus.TabActivated,
	)
	defer c.b.Unsubscribe(sub)

	sweep := time.NewTicker(c.cfg.SweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			c.sweep(time.Now())
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, msg bus.Message) {
	switch v := msg.(type) {
	case bus.MeetDetectedMsg:
		c.meetDetected(ctx, v.TabID)
	case bus.AudioStateChangedMsg:
		st := c.store.UpsertSampler(v.TabID, v.HasAudio, v.IsSpeaking, time.Now())
		c.refresh(v.TabID, st)
	case bus.OffscreenAudioDetectedMsg:
		st := c.store.UpsertAnalyzer(v.TabID, v.HasAudio, v.AudioLevel, time.Now())
		c.refresh(v.TabID, st)
	case bus.TranscriptionUpdateMsg:
		c.store.SetTranscript(v.TabID, v.Recent, v.Interim)
		c.b.Publish(bus.PopupTranscriptMsg{
			TabID:   v.TabID,
			Final:   v.Final,
			Interim: v.Interim,
			Recent:  v.Recent,
		})
	case bus.ToggleTranscriptionMsg:
		c.persistToggle(v)
	case bus.TabUpdatedMsg:
		c.tabUpdated(v)
	case bus.TabRemovedMsg:
		c.tabRemoved(v.TabID)
	case bus.TabActivatedMsg:
		c.mu.Lock()
		c.activeTab = v.TabID
		c.mu.Unlock()
		c.ind.SetActive(v.TabID)
	}
}

// meetDetected resolves the tab's stream id and (re)starts capture. Each
// detection bumps the tab's generation; a resolution that finishes after
// a newer detection is discarded.
func (c *Coordinator) meetDetected(ctx context.Context, tabID int) {
	c.mu.Lock()
	c.gens[tabID]++
	gen := c.gens[tabID]
	c.mu.Unlock()

	go func() {
		resolveCtx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
		defer cancel()

		streamID, err := c.plat.MediaStreamID(resolveCtx, tabID)
		if err != nil {
			log.Errorf("stream id resolution failed for tab %d: %v", tabID, err)
			return
		}

		c.mu.Lock()
		current := c.gens[tabID] == gen
		c.mu.Unlock()
		if !current {
			return
		}

		c.b.Publish(bus.StopAudioMonitoringMsg{TabID: tabID})
		c.b.Publish(bus.StartAudioMonitoringMsg{StreamID: streamID, TabID: tabID})

		// Give the capture session a moment to come up, then restore the
		// persisted transcription preference.
		time.AfterFunc(c.cfg.ToggleDelay, func() {
			c.mu.Lock()
			current := c.gens[tabID] == gen
			c.mu.Unlock()
			if !current {
				return
			}
			enabled, err := c.flags.Get(tabID)
			if err != nil {
				log.Errorf("transcription flag read failed for tab %d: %v", tabID, err)
				return
			}
			if enabled {
				c.b.Publish(bus.ToggleTranscriptionMsg{TabID: tabID, Enabled: true})
			}
		})
	}()
}

func (c *Coordinator) persistToggle(v bus.ToggleTranscriptionMsg) {
	if err := c.flags.Set(v.TabID, v.Enabled); err != nil {
		log.Errorf("transcription flag write failed for tab %d: %v", v.TabID, err)
	}
	if !v.Enabled {
		c.store.ClearTranscript(v.TabID)
	}
}

// tabUpdated clears a navigated tab's state. Signals from the previous
// page must not leak into the new one. Off the meeting domain capture
// stops too; on it, monitoring restarts when the sampler re-announces
// meet-detected.
func (c *Coordinator) tabUpdated(v bus.TabUpdatedMsg) {
	if c.onMeetingDomain(v.URL) {
		c.store.Evict(v.TabID)
	} else {
		c.evict(v.TabID)
	}
	c.ind.SetStatus(v.TabID, Inactive)
}

func (c *Coordinator) tabRemoved(tabID int) {
	c.mu.Lock()
	if c.activeTab == tabID {
		c.activeTab = 0
	}
	c.mu.Unlock()
	c.evict(tabID)
	c.ind.Remove(tabID)
	if err := c.flags.Delete(tabID); err != nil {
		log.Errorf("transcription flag delete failed for tab %d: %v", tabID, err)
	}
}

func (c *Coordinator) evict(tabID int) {
	c.mu.Lock()
	c.gens[tabID]++ // invalidate in-flight stream id resolutions
	c.mu.Unlock()
	c.store.Evict(tabID)
	c.b.Publish(bus.StopAudioMonitoringMsg{TabID: tabID})
}

func (c *Coordinator) onMeetingDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == c.cfg.MeetingDomain || strings.HasSuffix(host, "."+c.cfg.MeetingDomain)
}

// refresh pushes a tab's derived status to the indicator and the UI.
func (c *Coordinator) refresh(tabID int, st AudioState) {
	c.ind.SetStatus(tabID, Derive(st))
	c.b.Publish(bus.PopupStatusMsg{
		TabID:       tabID,
		HasAudio:    st.HasAudio,
		IsSpeaking:  st.IsSpeaking,
		HasTabAudio: st.HasTabAudio,
		AudioLevel:  st.AudioLevel,
	})
}

func (c *Coordinator) sweep(now time.Time) {
	evicted := c.store.Sweep(now, c.cfg.StaleAfter)
	for _, tabID := range evicted {
		c.ind.SetStatus(tabID, Inactive)
	}
	if len(evicted) > 0 {
		log.StateSweep(len(evicted))
	}
}

// Query returns the live picture for a tab, for pull-style UI reads.
// Stale audio reads as the zero state.
func (c *Coordinator) Query(tabID int) (AudioState, TranscriptState, Status) {
	audio, ok := c.store.Audio(tabID, time.Now(), c.cfg.StaleAfter)
	if !ok {
		audio = AudioState{}
	}
	transcript, _ := c.store.Transcript(tabID)
	return audio, transcript, Derive(audio)
}

func (c *Coordinator) ActiveTab() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTab
}
