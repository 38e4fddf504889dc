package state

// Status is what the visual indicator shows for a tab.
type Status int

const (
	Inactive Status = iota
	Listening
	Speaking
)

func (s Status) String() string {
	switch s {
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	default:
		return "inactive"
	}
}

// Derive maps a tab's merged audio state onto an indicator status. The
// local microphone wins over remote audio; either capture-path or
// DOM-path audio is enough for Listening.
func Derive(st AudioState) Status {
	if st.IsSpeaking {
		return Speaking
	}
	if st.HasTabAudio || st.HasAudio {
		return Listening
	}
	return Inactive
}

// Badge returns the short label and color hex for a status.
func (s Status) Badge() (text, color string) {
	switch s {
	case Speaking:
		return "MIC", "#4CAF50"
	case Listening:
		return "AUDIO", "#2196F3"
	default:
		return "", "#666666"
	}
}

// Indicator is the visual surface the coordinator drives. Implementations
// must tolerate updates for tabs they have never seen.
type Indicator interface {
	SetStatus(tabID int, status Status)
	SetActive(tabID int)
	Remove(tabID int)
}

// NopIndicator discards all updates.
type NopIndicator struct{}

func (NopIndicator) SetStatus(int, Status) {}
func (NopIndicator) SetActive(int)         {}
func (NopIndicator) Remove(int)            {}
