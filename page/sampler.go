package page

import (
	"sync"
	"time"

	"hark/bus"
	"hark/log"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultDebounceWindow = 150 * time.Millisecond
	defaultSettleDelay    = time.Second
)

// Config holds the sampler's timing knobs. Zero values fall back to the
// empirically tuned defaults.
type Config struct {
	PollInterval   time.Duration
	DebounceWindow time.Duration
	SettleDelay    time.Duration
}

func (c *Config) fill() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = defaultDebounceWindow
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
}

// Sampler watches one tab. It samples the latest snapshot on a fixed poll
// and, debounced, on snapshot arrival; every pass emits a fresh
// audio-state-changed event with no duplicate suppression.
type Sampler struct {
	tabID int
	b     *bus.Bus
	cfg   Config
	deb   *Debouncer

	mu       sync.Mutex
	snap     *Snapshot
	url      string
	visible  bool
	resumeAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSampler(b *bus.Bus, tabID int, cfg Config) *Sampler {
	cfg.fill()
	s := &Sampler{
		tabID: tabID,
		b:     b,
		cfg:   cfg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.deb = NewDebouncer(cfg.DebounceWindow, s.sample)
	return s
}

// Start announces the tab and begins the poll loop.
func (s *Sampler) Start() {
	s.b.Publish(bus.MeetDetectedMsg{TabID: s.tabID})
	go s.pollLoop()
}

func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.deb.Stop()
	})
	<-s.done
}

func (s *Sampler) pollLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// OnSnapshot installs a fresh snapshot and decides how to react: full
// re-init on a same-document URL change, an immediate resample when the
// tab becomes visible again, otherwise a debounced resample.
func (s *Sampler) OnSnapshot(msg bus.DomSnapshotMsg) {
	snap, err := Parse(msg)
	if err != nil {
		log.Warnf("tab %d: %v", s.tabID, err)
		return
	}

	s.mu.Lock()
	prevURL := s.url
	prevVisible := s.visible
	s.snap = snap
	s.url = msg.URL
	s.visible = msg.Visible
	s.mu.Unlock()

	switch {
	case prevURL != "" && prevURL != msg.URL:
		s.reinit()
	case !prevVisible && msg.Visible:
		s.sample()
	default:
		s.deb.Trigger()
	}
}

// reinit pauses sampling for the settle delay, then re-announces the tab
// and resumes. In-meeting client-side navigation replaces the whole page;
// sampling the half-built DOM would only produce noise.
func (s *Sampler) reinit() {
	s.mu.Lock()
	s.resumeAt = time.Now().Add(s.cfg.SettleDelay)
	s.mu.Unlock()

	time.AfterFunc(s.cfg.SettleDelay, func() {
		select {
		case <-s.stop:
			return
		default:
		}
		s.b.Publish(bus.MeetDetectedMsg{TabID: s.tabID})
		s.sample()
	})
}

// sample runs one detection pass. Any panic in the heuristics is treated
// as "no signal this round": logged, nothing emitted, sampler lives on.
func (s *Sampler) sample() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("tab %d: sampling pass panicked: %v", s.tabID, r)
		}
	}()

	s.mu.Lock()
	snap := s.snap
	resumeAt := s.resumeAt
	s.mu.Unlock()

	if snap == nil || time.Now().Before(resumeAt) {
		return
	}

	smp := Evaluate(snap)
	s.b.Publish(bus.AudioStateChangedMsg{
		TabID:      s.tabID,
		HasAudio:   smp.HasAudio,
		IsSpeaking: smp.IsSpeaking,
	})
}
