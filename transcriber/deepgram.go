package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

type Deepgram struct {
	apiKey   string
	language string
	model    string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey, model: "nova-3"}
}

func (d *Deepgram) SetLanguage(lang string) { d.language = lang }

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Dial(ctx context.Context) (Stream, error) {
	endpoint, err := url.Parse("wss://api.deepgram.com/v1/listen")
	if err != nil {
		return nil, err
	}

	q := endpoint.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	if d.language != "" {
		q.Set("language", d.language)
	}
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(context.Background())
	conn, _, err := websocket.Dial(ctx, endpoint.String(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	return &deepgramStream{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *deepgramStream) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

func (s *deepgramStream) Recv() (Update, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return Update{}, err
		}

		var resp deepgramResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return Update{}, err
		}
		if resp.Type != "" && resp.Type != "Results" {
			continue // metadata frames
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}

		return Update{
			Text:    strings.TrimSpace(transcript),
			IsFinal: resp.IsFinal || resp.SpeechFinal,
		}, nil
	}
}

func (s *deepgramStream) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
