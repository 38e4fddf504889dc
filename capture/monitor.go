package capture

import (
	"context"
	"sync"
	"time"

	"hark/bus"
	"hark/log"
	"hark/transcriber"
)

// DefaultTick is how often a capture session publishes an analyzer
// reading.
const DefaultTick = 100 * time.Millisecond

// Monitor owns all live capture sessions. It reacts to start, stop, and
// transcription-toggle messages; each session meters its tab's audio on a
// fixed tick and optionally streams the same PCM into a recognition
// session.
type Monitor struct {
	b          *bus.Bus
	newContext func() (Context, error)
	dialer     transcriber.Dialer
	threshold  float64
	tick       time.Duration

	mu       sync.Mutex
	capCtx   Context
	sessions map[int]*captureSession
}

func NewMonitor(b *bus.Bus, newContext func() (Context, error), dialer transcriber.Dialer, threshold float64) *Monitor {
	return &Monitor{
		b:          b,
		newContext: newContext,
		dialer:     dialer,
		threshold:  threshold,
		tick:       DefaultTick,
		sessions:   make(map[int]*captureSession),
	}
}

// Run consumes capture control messages until ctx is done, then tears
// down every session and the capture context.
func (m *Monitor) Run(ctx context.Context) {
	sub := m.b.Subscribe(64, bus.StartAudioMonitoring, bus.StopAudioMonitoring, bus.ToggleTranscription)
	defer m.b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case msg, ok := <-sub.C:
			if !ok {
				m.Close()
				return
			}
			switch v := msg.(type) {
			case bus.StartAudioMonitoringMsg:
				m.start(v)
			case bus.StopAudioMonitoringMsg:
				m.stop(v.TabID)
			case bus.ToggleTranscriptionMsg:
				m.toggle(v)
			}
		}
	}
}

// start opens a capture session for the tab, replacing any existing one.
// An open failure is logged and abandoned; the next start message for the
// tab retries from scratch.
func (m *Monitor) start(msg bus.StartAudioMonitoringMsg) {
	m.mu.Lock()
	if old, ok := m.sessions[msg.TabID]; ok {
		delete(m.sessions, msg.TabID)
		m.mu.Unlock()
		old.teardown()
		m.mu.Lock()
	}

	capCtx := m.capCtx
	if capCtx == nil {
		var err error
		capCtx, err = m.newContext()
		if err != nil {
			m.mu.Unlock()
			log.Errorf("capture context init failed: %v", err)
			return
		}
		m.capCtx = capCtx
	}
	m.mu.Unlock()

	dev, err := capCtx.NewCapture(msg.StreamID, Config{SampleRate: SampleRate, Channels: Channels})
	if err != nil {
		log.Errorf("capture open failed for tab %d: %v", msg.TabID, err)
		return
	}

	s := &captureSession{
		tabID:    msg.TabID,
		streamID: msg.StreamID,
		device:   dev,
		analyzer: NewAnalyzer(m.threshold),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	dev.SetCallback(func(data []byte, _ uint32) {
		s.analyzer.Write(data)
		s.feedTranscriber(data)
	})
	if err := dev.Start(); err != nil {
		dev.Close()
		log.Errorf("capture start failed for tab %d: %v", msg.TabID, err)
		return
	}

	m.mu.Lock()
	m.sessions[msg.TabID] = s
	m.mu.Unlock()

	log.MonitorStart(msg.TabID, msg.StreamID)
	go s.loop(m.b, m.tick)
}

func (m *Monitor) stop(tabID int) {
	m.mu.Lock()
	s, ok := m.sessions[tabID]
	if ok {
		delete(m.sessions, tabID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.teardown()
	log.MonitorStop(tabID)
}

func (m *Monitor) toggle(msg bus.ToggleTranscriptionMsg) {
	m.mu.Lock()
	s, ok := m.sessions[msg.TabID]
	m.mu.Unlock()
	if !ok {
		// No capture session yet; the coordinator re-sends the toggle
		// once monitoring is up.
		return
	}

	if !msg.Enabled {
		s.stopTranscriber()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts != nil {
		s.ts.Start()
		return
	}
	tabID := msg.TabID
	s.ts = transcriber.NewSession(m.dialer, func(ev transcriber.Event) {
		if ev.Final != "" {
			log.TranscriptionText(ev.Final)
		}
		m.b.Publish(bus.TranscriptionUpdateMsg{
			TabID:   tabID,
			Final:   ev.Final,
			Interim: ev.Interim,
			Recent:  toTranscriptLines(ev.Recent),
		})
	})
	s.ts.Start()
}

// SessionCount reports live sessions, for the UI status line.
func (m *Monitor) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every session and releases the capture context.
func (m *Monitor) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int]*captureSession)
	capCtx := m.capCtx
	m.capCtx = nil
	m.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
	if capCtx != nil {
		capCtx.Close()
	}
}

func toTranscriptLines(lines []transcriber.Line) []bus.TranscriptLine {
	out := make([]bus.TranscriptLine, len(lines))
	for i, l := range lines {
		out[i] = bus.TranscriptLine{Text: l.Text, At: l.At}
	}
	return out
}

type captureSession struct {
	tabID    int
	streamID string
	device   Device
	analyzer *Analyzer
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu sync.Mutex
	ts *transcriber.Session
}

// loop publishes one analyzer reading per tick, silent or not. Staleness
// detection downstream depends on the steady heartbeat.
func (s *captureSession) loop(b *bus.Bus, tick time.Duration) {
	defer close(s.done)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			hasAudio, level := s.analyzer.Level()
			b.Publish(bus.OffscreenAudioDetectedMsg{
				TabID:      s.tabID,
				HasAudio:   hasAudio,
				AudioLevel: level,
			})
		}
	}
}

func (s *captureSession) feedTranscriber(pcm []byte) {
	s.mu.Lock()
	ts := s.ts
	s.mu.Unlock()
	if ts != nil {
		ts.Feed(pcm)
	}
}

func (s *captureSession) stopTranscriber() {
	s.mu.Lock()
	ts := s.ts
	s.mu.Unlock()
	if ts != nil {
		ts.Stop()
	}
}

func (s *captureSession) teardown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.device.ClearCallback()
		s.device.Stop()
		s.device.Close()
		s.stopTranscriber()
		<-s.done
	})
}
