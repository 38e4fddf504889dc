package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hark/bus"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakePlatform struct {
	mu       sync.Mutex
	streamID string
	err      error
	calls    int
}

func (p *fakePlatform) MediaStreamID(_ context.Context, tabID int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.streamID != "" {
		return p.streamID, nil
	}
	return "tab:stream", nil
}

func (p *fakePlatform) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeFlags struct {
	mu      sync.Mutex
	flags   map[int]bool
	deleted []int
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{flags: map[int]bool{}}
}

func (f *fakeFlags) Get(tabID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[tabID], nil
}

func (f *fakeFlags) Set(tabID int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[tabID] = enabled
	return nil
}

func (f *fakeFlags) Delete(tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flags, tabID)
	f.deleted = append(f.deleted, tabID)
	return nil
}

func (f *fakeFlags) wasDeleted(tabID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.deleted {
		if id == tabID {
			return true
		}
	}
	return false
}

type fakeIndicator struct {
	mu       sync.Mutex
	statuses map[int]Status
	removed  []int
	active   int
}

func newFakeIndicator() *fakeIndicator {
	return &fakeIndicator{statuses: map[int]Status{}}
}

func (f *fakeIndicator) SetStatus(tabID int, status Status) {
	f.mu.Lock()
	f.statuses[tabID] = status
	f.mu.Unlock()
}

func (f *fakeIndicator) SetActive(tabID int) {
	f.mu.Lock()
	f.active = tabID
	f.mu.Unlock()
}

func (f *fakeIndicator) Remove(tabID int) {
	f.mu.Lock()
	delete(f.statuses, tabID)
	f.removed = append(f.removed, tabID)
	f.mu.Unlock()
}

func (f *fakeIndicator) status(tabID int) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[tabID]
}

func (f *fakeIndicator) wasRemoved(tabID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.removed {
		if id == tabID {
			return true
		}
	}
	return false
}

type coordFixture struct {
	b     *bus.Bus
	store *StateStore
	ind   *fakeIndicator
	plat  *fakePlatform
	flags *fakeFlags
	coord *Coordinator
}

func newCoordFixture(t *testing.T, cfg Config) *coordFixture {
	t.Helper()
	f := &coordFixture{
		b:     bus.New(),
		store: NewStateStore(),
		ind:   newFakeIndicator(),
		plat:  &fakePlatform{},
		flags: newFakeFlags(),
	}
	f.coord = NewCoordinator(f.b, f.store, f.ind, f.plat, f.flags, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		f.b.Close()
	})
	return f
}

func TestCoordinatorMeetDetectedStartsCapture(t *testing.T) {
	f := newCoordFixture(t, Config{ToggleDelay: 10 * time.Millisecond})
	sub := f.b.Subscribe(16, bus.StartAudioMonitoring, bus.StopAudioMonitoring)

	f.b.Publish(bus.MeetDetectedMsg{TabID: 3})

	// Stop always precedes start, so a stale session never survives.
	msg := <-sub.C
	if _, ok := msg.(bus.StopAudioMonitoringMsg); !ok {
		t.Fatalf("first message = %T, want stop", msg)
	}
	msg = <-sub.C
	start, ok := msg.(bus.StartAudioMonitoringMsg)
	if !ok {
		t.Fatalf("second message = %T, want start", msg)
	}
	if start.TabID != 3 || start.StreamID != "tab:stream" {
		t.Errorf("start = %+v", start)
	}
}

func TestCoordinatorRestoresTranscriptionFlag(t *testing.T) {
	f := newCoordFixture(t, Config{ToggleDelay: 10 * time.Millisecond})
	f.flags.Set(3, true)
	sub := f.b.Subscribe(16, bus.ToggleTranscription)

	f.b.Publish(bus.MeetDetectedMsg{TabID: 3})

	select {
	case msg := <-sub.C:
		tog := msg.(bus.ToggleTranscriptionMsg)
		if tog.TabID != 3 || !tog.Enabled {
			t.Errorf("toggle = %+v", tog)
		}
	case <-time.After(time.Second):
		t.Fatal("persisted flag was not restored after capture start")
	}
}

func TestCoordinatorStreamIDFailureAbandons(t *testing.T) {
	f := newCoordFixture(t, Config{})
	f.plat.err = errors.New("no companion")
	sub := f.b.Subscribe(16, bus.StartAudioMonitoring)

	f.b.Publish(bus.MeetDetectedMsg{TabID: 3})
	waitFor(t, "resolution attempt", func() bool { return f.plat.callCount() == 1 })

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected %T after resolution failure", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoordinatorMergesBothPaths(t *testing.T) {
	f := newCoordFixture(t, Config{})

	f.b.Publish(bus.OffscreenAudioDetectedMsg{TabID: 5, HasAudio: true, AudioLevel: 0.4})
	waitFor(t, "listening", func() bool { return f.ind.status(5) == Listening })

	f.b.Publish(bus.AudioStateChangedMsg{TabID: 5, HasAudio: true, IsSpeaking: true})
	waitFor(t, "speaking", func() bool { return f.ind.status(5) == Speaking })

	// Microphone released; remote audio alone drops back to Listening.
	f.b.Publish(bus.AudioStateChangedMsg{TabID: 5, HasAudio: false, IsSpeaking: false})
	waitFor(t, "listening again", func() bool { return f.ind.status(5) == Listening })

	audio, _, status := f.coord.Query(5)
	if status != Listening || !audio.HasTabAudio || audio.AudioLevel != 0.4 {
		t.Errorf("query = %+v %v", audio, status)
	}
}

func TestCoordinatorPushesPopupStatus(t *testing.T) {
	f := newCoordFixture(t, Config{})
	sub := f.b.Subscribe(16, bus.PopupUpdateStatus)

	f.b.Publish(bus.AudioStateChangedMsg{TabID: 5, HasAudio: true, IsSpeaking: true})

	select {
	case msg := <-sub.C:
		up := msg.(bus.PopupStatusMsg)
		if up.TabID != 5 || !up.IsSpeaking {
			t.Errorf("popup status = %+v", up)
		}
	case <-time.After(time.Second):
		t.Fatal("no popup status push")
	}
}

func TestCoordinatorTabRemoved(t *testing.T) {
	f := newCoordFixture(t, Config{})
	f.flags.Set(7, true)
	sub := f.b.Subscribe(16, bus.StopAudioMonitoring)

	f.b.Publish(bus.AudioStateChangedMsg{TabID: 7, HasAudio: true})
	waitFor(t, "state", func() bool { return f.ind.status(7) == Listening })

	f.b.Publish(bus.TabRemovedMsg{TabID: 7})
	waitFor(t, "removal", func() bool { return f.ind.wasRemoved(7) })

	select {
	case msg := <-sub.C:
		if stop := msg.(bus.StopAudioMonitoringMsg); stop.TabID != 7 {
			t.Errorf("stop = %+v", stop)
		}
	case <-time.After(time.Second):
		t.Fatal("no stop message for removed tab")
	}

	if !f.flags.wasDeleted(7) {
		t.Error("transcription flag should be deleted with the tab")
	}
	if _, ok := f.store.Audio(7, time.Now(), time.Minute); ok {
		t.Error("state should be evicted with the tab")
	}
}

func TestCoordinatorTabNavigatedAway(t *testing.T) {
	f := newCoordFixture(t, Config{})

	f.b.Publish(bus.AudioStateChangedMsg{TabID: 8, HasAudio: true})
	waitFor(t, "state", func() bool { return f.ind.status(8) == Listening })

	f.b.Publish(bus.TabUpdatedMsg{TabID: 8, URL: "https://example.com/"})
	waitFor(t, "eviction", func() bool {
		_, ok := f.store.Audio(8, time.Now(), time.Minute)
		return !ok
	})
	if f.ind.status(8) != Inactive {
		t.Errorf("status = %v, want inactive", f.ind.status(8))
	}

	// In-domain navigation also clears state (the new meeting must not
	// inherit the old one's signals) but keeps capture control with the
	// sampler's re-announcement rather than stopping it here.
	stopSub := f.b.Subscribe(16, bus.StopAudioMonitoring)
	f.b.Publish(bus.AudioStateChangedMsg{TabID: 8, HasAudio: true})
	waitFor(t, "state back", func() bool { return f.ind.status(8) == Listening })
	f.b.Publish(bus.TabUpdatedMsg{TabID: 8, URL: "https://meet.google.com/abc-defg-hij"})
	waitFor(t, "state cleared", func() bool {
		_, ok := f.store.Audio(8, time.Now(), time.Minute)
		return !ok
	})
	select {
	case msg := <-stopSub.C:
		t.Fatalf("unexpected %T on in-domain navigation", msg)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCoordinatorSweepEvictsStale(t *testing.T) {
	f := newCoordFixture(t, Config{StaleAfter: 30 * time.Second})

	f.store.UpsertSampler(9, true, true, time.Now().Add(-40*time.Second))
	f.ind.SetStatus(9, Speaking)

	f.coord.sweep(time.Now())
	if f.ind.status(9) != Inactive {
		t.Errorf("status = %v, want inactive after sweep", f.ind.status(9))
	}
	if _, _, status := f.coord.Query(9); status != Inactive {
		t.Errorf("query status = %v, want inactive", status)
	}
}

func TestCoordinatorToggleDisablePersistsAndClears(t *testing.T) {
	f := newCoordFixture(t, Config{})
	f.store.SetTranscript(4, []bus.TranscriptLine{{Text: "line"}}, "pending")

	f.b.Publish(bus.ToggleTranscriptionMsg{TabID: 4, Enabled: false})
	waitFor(t, "flag cleared", func() bool {
		enabled, _ := f.flags.Get(4)
		return !enabled
	})
	waitFor(t, "transcript cleared", func() bool {
		_, ok := f.store.Transcript(4)
		return !ok
	})
}

func TestCoordinatorActiveTab(t *testing.T) {
	f := newCoordFixture(t, Config{})
	f.b.Publish(bus.TabActivatedMsg{TabID: 11})
	waitFor(t, "active tab", func() bool { return f.coord.ActiveTab() == 11 })
}
