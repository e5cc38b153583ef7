package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"relaybot/internal/domain"
)

type postedMessage struct {
	Channel  string
	Text     string
	ThreadTS string
}

// fakeSlackAPI serves auth.test and chat.postMessage.
type fakeSlackAPI struct {
	mu       sync.Mutex
	posts    []postedMessage
	failPost bool
}

func (f *fakeSlackAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/auth.test"):
		w.Write([]byte(`{"ok":true,"url":"https://example.slack.com/","team":"Example","user":"relaybot","team_id":"T1","user_id":"UBOT"}`))
	case strings.HasSuffix(r.URL.Path, "/chat.postMessage"):
		msg := parsePost(r)
		f.mu.Lock()
		fail := f.failPost
		if !fail {
			f.posts = append(f.posts, msg)
		}
		f.mu.Unlock()
		if fail {
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": msg.Channel, "ts": "1700000001.000200"})
	default:
		w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
	}
}

func parsePost(r *http.Request) postedMessage {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Channel  string `json:"channel"`
			Text     string `json:"text"`
			ThreadTS string `json:"thread_ts"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		return postedMessage{Channel: body.Channel, Text: body.Text, ThreadTS: body.ThreadTS}
	}
	r.ParseForm()
	return postedMessage{
		Channel:  r.PostForm.Get("channel"),
		Text:     r.PostForm.Get("text"),
		ThreadTS: r.PostForm.Get("thread_ts"),
	}
}

func (f *fakeSlackAPI) sent() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedMessage(nil), f.posts...)
}

func newTestSlack(t *testing.T) (*Slack, *fakeSlackAPI) {
	t.Helper()
	api := &fakeSlackAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewSlack(SlackConfig{BotToken: "xoxb-test", APIURL: srv.URL + "/", Logger: testLogger()}), api
}

func TestSlack_Identify(t *testing.T) {
	s, _ := newTestSlack(t)
	uid, err := s.Identify(context.Background())
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if uid != "UBOT" || s.BotUserID() != "UBOT" {
		t.Fatalf("got %q", uid)
	}
}

func TestSlack_PostInThread(t *testing.T) {
	s, api := newTestSlack(t)
	err := s.Post(context.Background(), domain.OutboundMessage{ChannelID: "C1", Text: "<@U1> hi", ThreadRoot: "1.0"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	sent := api.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 post, got %d", len(sent))
	}
	if sent[0] != (postedMessage{Channel: "C1", Text: "<@U1> hi", ThreadTS: "1.0"}) {
		t.Fatalf("got %+v", sent[0])
	}
}

func TestSlack_PostError(t *testing.T) {
	s, api := newTestSlack(t)
	api.mu.Lock()
	api.failPost = true
	api.mu.Unlock()
	err := s.Post(context.Background(), domain.OutboundMessage{ChannelID: "C404", Text: "x", ThreadRoot: "1.0"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
}
