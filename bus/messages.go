package bus

import "time"

// Tag discriminates messages on the bus. Values mirror the wire protocol
// spoken with the browser companion.
type Tag string

const (
	MeetDetected             Tag = "meet-detected"
	AudioStateChanged        Tag = "audio-state-changed"
	StartAudioMonitoring     Tag = "start-audio-monitoring"
	StopAudioMonitoring      Tag = "stop-audio-monitoring"
	OffscreenAudioDetected   Tag = "offscreen-audio-detected"
	ToggleTranscription      Tag = "toggle-transcription"
	TranscriptionUpdate      Tag = "transcription-update"
	PopupUpdateStatus        Tag = "popup-update-status"
	PopupTranscriptionUpdate Tag = "popup-transcription-update"
	DomSnapshot              Tag = "dom-snapshot"
	TabUpdated               Tag = "tab-updated"
	TabRemoved               Tag = "tab-removed"
	TabActivated             Tag = "tab-activated"
)

// Message is anything routable by the bus.
type Message interface {
	Tag() Tag
}

// MeetDetectedMsg announces that a tab is on a meeting page and should be
// monitored.
type MeetDetectedMsg struct {
	TabID int
}

func (MeetDetectedMsg) Tag() Tag { return MeetDetected }

// AudioStateChangedMsg carries one DOM sampling pass for a tab.
type AudioStateChangedMsg struct {
	TabID      int
	HasAudio   bool
	IsSpeaking bool
}

func (AudioStateChangedMsg) Tag() Tag { return AudioStateChanged }

// StartAudioMonitoringMsg instructs the capture context to create (or
// replace) the capture session for a tab.
type StartAudioMonitoringMsg struct {
	StreamID string
	TabID    int
}

func (StartAudioMonitoringMsg) Tag() Tag { return StartAudioMonitoring }

// StopAudioMonitoringMsg instructs the capture context to tear down the
// capture session for a tab.
type StopAudioMonitoringMsg struct {
	TabID int
}

func (StopAudioMonitoringMsg) Tag() Tag { return StopAudioMonitoring }

// OffscreenAudioDetectedMsg carries one analyzer tick for a tab.
type OffscreenAudioDetectedMsg struct {
	TabID      int
	HasAudio   bool
	AudioLevel float64
}

func (OffscreenAudioDetectedMsg) Tag() Tag { return OffscreenAudioDetected }

// ToggleTranscriptionMsg enables or disables transcription for a tab.
type ToggleTranscriptionMsg struct {
	TabID   int
	Enabled bool
}

func (ToggleTranscriptionMsg) Tag() Tag { return ToggleTranscription }

// TranscriptLine is one finalized recognition segment.
type TranscriptLine struct {
	Text string
	At   time.Time
}

// TranscriptionUpdateMsg carries incremental transcript output for a tab.
type TranscriptionUpdateMsg struct {
	TabID   int
	Final   string
	Interim string
	Recent  []TranscriptLine
}

func (TranscriptionUpdateMsg) Tag() Tag { return TranscriptionUpdate }

// PopupStatusMsg is a best-effort push of merged audio state to any open UI.
type PopupStatusMsg struct {
	TabID       int
	HasAudio    bool
	IsSpeaking  bool
	HasTabAudio bool
	AudioLevel  float64
}

func (PopupStatusMsg) Tag() Tag { return PopupUpdateStatus }

// PopupTranscriptMsg is a best-effort push of transcript state to any open UI.
type PopupTranscriptMsg struct {
	TabID   int
	Final   string
	Interim string
	Recent  []TranscriptLine
}

func (PopupTranscriptMsg) Tag() Tag { return PopupTranscriptionUpdate }

// MediaState describes one audio/video element in a DOM snapshot.
type MediaState struct {
	Paused   bool
	Muted    bool
	Volume   float64
	Advanced bool // playback position moved since the previous snapshot
}

// DomSnapshotMsg carries one DOM snapshot of a meeting tab as reported by
// the browser companion.
type DomSnapshotMsg struct {
	TabID            int
	URL              string
	HTML             string
	Visible          bool
	Media            []MediaState
	VolumeTransforms []string // CSS transforms of participant volume bars
}

func (DomSnapshotMsg) Tag() Tag { return DomSnapshot }

// TabUpdatedMsg reports a tab navigation.
type TabUpdatedMsg struct {
	TabID int
	URL   string
}

func (TabUpdatedMsg) Tag() Tag { return TabUpdated }

// TabRemovedMsg reports a closed tab.
type TabRemovedMsg struct {
	TabID int
}

func (TabRemovedMsg) Tag() Tag { return TabRemoved }

// TabActivatedMsg reports a focus change to a tab.
type TabActivatedMsg struct {
	TabID int
}

func (TabActivatedMsg) Tag() Tag { return TabActivated }
