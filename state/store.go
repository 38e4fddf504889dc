// Package state holds the per-tab audio picture assembled from the two
// independent detection paths and drives everything derived from it: the
// indicator, UI pushes, and staleness eviction.
package state

import (
	"sync"
	"time"

	"hark/bus"
)

// AudioState is the merged view of one tab. The DOM sampler owns HasAudio
// and IsSpeaking; the capture analyzer owns HasTabAudio and AudioLevel.
// Either path updating the tab refreshes UpdatedAt.
type AudioState struct {
	HasAudio    bool
	IsSpeaking  bool
	HasTabAudio bool
	AudioLevel  float64
	UpdatedAt   time.Time
}

// TranscriptState is the latest transcript picture for one tab.
type TranscriptState struct {
	Recent  []bus.TranscriptLine
	Interim string
}

// StateStore keeps per-tab audio and transcript state. Each detection
// path upserts only its own fields, so out-of-order arrivals between the
// two paths cannot clobber each other.
type StateStore struct {
	mu         sync.Mutex
	audio      map[int]AudioState
	transcript map[int]TranscriptState
}

func NewStateStore() *StateStore {
	return &StateStore{
		audio:      make(map[int]AudioState),
		transcript: make(map[int]TranscriptState),
	}
}

// UpsertSampler folds one DOM sampling pass into the tab's state.
func (s *StateStore) UpsertSampler(tabID int, hasAudio, isSpeaking bool, now time.Time) AudioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.audio[tabID]
	st.HasAudio = hasAudio
	st.IsSpeaking = isSpeaking
	st.UpdatedAt = now
	s.audio[tabID] = st
	return st
}

// UpsertAnalyzer folds one capture analyzer tick into the tab's state.
func (s *StateStore) UpsertAnalyzer(tabID int, hasTabAudio bool, level float64, now time.Time) AudioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.audio[tabID]
	st.HasTabAudio = hasTabAudio
	st.AudioLevel = level
	st.UpdatedAt = now
	s.audio[tabID] = st
	return st
}

// SetTranscript replaces the tab's transcript picture wholesale.
func (s *StateStore) SetTranscript(tabID int, recent []bus.TranscriptLine, interim string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript[tabID] = TranscriptState{
		Recent:  append([]bus.TranscriptLine(nil), recent...),
		Interim: interim,
	}
}

func (s *StateStore) ClearTranscript(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcript, tabID)
}

// Audio returns the tab's state unless it has gone stale.
func (s *StateStore) Audio(tabID int, now time.Time, maxAge time.Duration) (AudioState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.audio[tabID]
	if !ok || now.Sub(st.UpdatedAt) > maxAge {
		return AudioState{}, false
	}
	return st, true
}

func (s *StateStore) Transcript(tabID int) (TranscriptState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.transcript[tabID]
	return st, ok
}

// Evict drops everything known about a tab.
func (s *StateStore) Evict(tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.audio, tabID)
	delete(s.transcript, tabID)
}

// Sweep evicts tabs whose audio state is older than maxAge and returns
// their ids.
func (s *StateStore) Sweep(now time.Time, maxAge time.Duration) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []int
	for tabID, st := range s.audio {
		if now.Sub(st.UpdatedAt) > maxAge {
			delete(s.audio, tabID)
			delete(s.transcript, tabID)
			evicted = append(evicted, tabID)
		}
	}
	return evicted
}

func (s *StateStore) Tabs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make([]int, 0, len(s.audio))
	for tabID := range s.audio {
		tabs = append(tabs, tabID)
	}
	return tabs
}
