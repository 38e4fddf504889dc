// Package bridge speaks the companion protocol: a browser-side helper
// connects over a local websocket, streams tab lifecycle events and DOM
// snapshots in, and answers stream id requests on the way back.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"hark/bus"
	"hark/log"
)

const writeTimeout = 5 * time.Second

type mediaState struct {
	Paused   bool    `json:"paused"`
	Muted    bool    `json:"muted"`
	Volume   float64 `json:"volume"`
	Advanced bool    `json:"advanced"`
}

// envelope is the single wire frame in both directions.
type envelope struct {
	Type             string       `json:"type"`
	TabID            int          `json:"tabId,omitempty"`
	URL              string       `json:"url,omitempty"`
	HTML             string       `json:"html,omitempty"`
	Visible          bool         `json:"visible,omitempty"`
	Enabled          bool         `json:"enabled,omitempty"`
	Media            []mediaState `json:"media,omitempty"`
	VolumeTransforms []string     `json:"volumeTransforms,omitempty"`
	RequestID        string       `json:"requestId,omitempty"`
	StreamID         string       `json:"streamId,omitempty"`
}

// Server accepts companion connections and translates frames to and from
// bus messages. It implements the coordinator's Platform.
type Server struct {
	b *bus.Bus

	mu      sync.Mutex
	conns   map[*companionConn]struct{}
	pending map[string]chan string
	closed  bool
}

func NewServer(b *bus.Bus) *Server {
	return &Server{
		b:       b,
		conns:   make(map[*companionConn]struct{}),
		pending: make(map[string]chan string),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Errorf("companion accept failed: %v", err)
		return
	}

	conn := &companionConn{id: uuid.NewString(), ws: ws}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	log.Infof("companion connected: %s", conn.id)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")
		log.Infof("companion disconnected: %s", conn.id)
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warnf("companion %s: bad frame: %v", conn.id, err)
			continue
		}
		s.dispatch(env)
	}
}

func (s *Server) dispatch(env envelope) {
	switch env.Type {
	case "dom-snapshot":
		media := make([]bus.MediaState, len(env.Media))
		for i, m := range env.Media {
			media[i] = bus.MediaState{Paused: m.Paused, Muted: m.Muted, Volume: m.Volume, Advanced: m.Advanced}
		}
		s.b.Publish(bus.DomSnapshotMsg{
			TabID:            env.TabID,
			URL:              env.URL,
			HTML:             env.HTML,
			Visible:          env.Visible,
			Media:            media,
			VolumeTransforms: env.VolumeTransforms,
		})
	case "tab-updated":
		s.b.Publish(bus.TabUpdatedMsg{TabID: env.TabID, URL: env.URL})
	case "tab-removed":
		s.b.Publish(bus.TabRemovedMsg{TabID: env.TabID})
	case "tab-activated":
		s.b.Publish(bus.TabActivatedMsg{TabID: env.TabID})
	case "toggle-transcription":
		s.b.Publish(bus.ToggleTranscriptionMsg{TabID: env.TabID, Enabled: env.Enabled})
	case "stream-id":
		s.resolve(env.RequestID, env.StreamID)
	default:
		log.Warnf("companion sent unknown frame type %q", env.Type)
	}
}

func (s *Server) resolve(requestID, streamID string) {
	s.mu.Lock()
	ch, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if ok {
		ch <- streamID
	}
}

// MediaStreamID asks the connected companion for the tab's capture
// stream id and waits for the answer.
func (s *Server) MediaStreamID(ctx context.Context, tabID int) (string, error) {
	requestID := uuid.NewString()
	ch := make(chan string, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New("bridge shut down")
	}
	conns := make([]*companionConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	if len(conns) == 0 {
		s.mu.Unlock()
		return "", errors.New("no companion connected")
	}
	s.pending[requestID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	env := envelope{Type: "get-stream-id", TabID: tabID, RequestID: requestID}
	sent := false
	for _, c := range conns {
		if err := c.send(env); err != nil {
			log.Warnf("companion %s: stream id request failed: %v", c.id, err)
			continue
		}
		sent = true
	}
	if !sent {
		return "", errors.New("stream id request could not be delivered")
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("stream id for tab %d: %w", tabID, ctx.Err())
	case streamID := <-ch:
		return streamID, nil
	}
}

// Shutdown closes every companion connection and refuses new ones.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*companionConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*companionConn]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close(websocket.StatusGoingAway, "shutting down")
	}
}

type companionConn struct {
	id string
	ws *websocket.Conn
	wm sync.Mutex
}

func (c *companionConn) send(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.wm.Lock()
	defer c.wm.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
