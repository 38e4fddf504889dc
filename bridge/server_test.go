package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"hark/bus"
)

type bridgeFixture struct {
	b      *bus.Bus
	srv    *Server
	client *websocket.Conn
	ctx    context.Context
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	b := bus.New()
	srv := NewServer(b)
	hs := httptest.NewServer(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http")
	client, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		client.Close(websocket.StatusNormalClosure, "")
		srv.Shutdown()
		hs.Close()
		b.Close()
		cancel()
	})
	return &bridgeFixture{b: b, srv: srv, client: client, ctx: ctx}
}

func (f *bridgeFixture) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.client.Write(f.ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBridgeDomSnapshot(t *testing.T) {
	f := newBridgeFixture(t)
	sub := f.b.Subscribe(16, bus.DomSnapshot)

	f.sendJSON(t, envelope{
		Type:             "dom-snapshot",
		TabID:            3,
		URL:              "https://meet.google.com/abc",
		HTML:             "<html><body></body></html>",
		Visible:          true,
		Media:            []mediaState{{Volume: 0.5, Advanced: true}},
		VolumeTransforms: []string{"scaleY(0.4)"},
	})

	select {
	case msg := <-sub.C:
		snap := msg.(bus.DomSnapshotMsg)
		if snap.TabID != 3 || !snap.Visible {
			t.Errorf("snapshot = %+v", snap)
		}
		if len(snap.Media) != 1 || snap.Media[0].Volume != 0.5 || !snap.Media[0].Advanced {
			t.Errorf("media = %+v", snap.Media)
		}
		if len(snap.VolumeTransforms) != 1 {
			t.Errorf("transforms = %v", snap.VolumeTransforms)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never reached the bus")
	}
}

func TestBridgeTabLifecycle(t *testing.T) {
	f := newBridgeFixture(t)
	sub := f.b.Subscribe(16, bus.TabUpdated, bus.TabRemoved, bus.TabActivated)

	f.sendJSON(t, envelope{Type: "tab-updated", TabID: 4, URL: "https://example.com"})
	f.sendJSON(t, envelope{Type: "tab-activated", TabID: 4})
	f.sendJSON(t, envelope{Type: "tab-removed", TabID: 4})

	want := []bus.Tag{bus.TabUpdated, bus.TabActivated, bus.TabRemoved}
	for _, tag := range want {
		select {
		case msg := <-sub.C:
			if msg.Tag() != tag {
				t.Errorf("got %s, want %s", msg.Tag(), tag)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s on the bus", tag)
		}
	}
}

func TestBridgeMediaStreamID(t *testing.T) {
	f := newBridgeFixture(t)

	type result struct {
		id  string
		err error
	}
	res := make(chan result, 1)
	go func() {
		id, err := f.srv.MediaStreamID(f.ctx, 9)
		res <- result{id, err}
	}()

	// Play the companion: answer the request frame.
	_, data, err := f.client.Read(f.ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var req envelope
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Type != "get-stream-id" || req.TabID != 9 || req.RequestID == "" {
		t.Fatalf("request = %+v", req)
	}
	f.sendJSON(t, envelope{Type: "stream-id", RequestID: req.RequestID, StreamID: "tab:media-9"})

	r := <-res
	if r.err != nil {
		t.Fatalf("MediaStreamID: %v", r.err)
	}
	if r.id != "tab:media-9" {
		t.Errorf("stream id = %q", r.id)
	}
}

func TestBridgeMediaStreamIDTimeout(t *testing.T) {
	f := newBridgeFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.srv.MediaStreamID(ctx, 9); err == nil {
		t.Fatal("expected timeout when the companion stays silent")
	}
	// The unanswered request frame is still on the wire; drain it.
	f.client.Read(f.ctx)
}

func TestBridgeNoCompanion(t *testing.T) {
	b := bus.New()
	defer b.Close()
	srv := NewServer(b)
	defer srv.Shutdown()

	if _, err := srv.MediaStreamID(context.Background(), 1); err == nil {
		t.Fatal("expected error with no companion connected")
	}
}

func TestBridgeToggleFrame(t *testing.T) {
	f := newBridgeFixture(t)
	sub := f.b.Subscribe(16, bus.ToggleTranscription)

	f.sendJSON(t, envelope{Type: "toggle-transcription", TabID: 6, Enabled: true})

	select {
	case msg := <-sub.C:
		tog := msg.(bus.ToggleTranscriptionMsg)
		if tog.TabID != 6 || !tog.Enabled {
			t.Errorf("toggle = %+v", tog)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("toggle never reached the bus")
	}
}
