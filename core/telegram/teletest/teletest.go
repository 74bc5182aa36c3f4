// Package teletest runs a telebot.Bot against a fake Bot API server.
package teletest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"
)

// Call is one Bot API request seen by the server.
type Call struct {
	Method string
	Params map[string]any
}

// Text returns the "text" parameter.
func (c Call) Text() string {
	s, _ := c.Params["text"].(string)
	return s
}

// Keyboard decodes the inline keyboard of the call, if any.
func (c Call) Keyboard() [][]tele.InlineButton {
	var markup struct {
		InlineKeyboard [][]tele.InlineButton `json:"inline_keyboard"`
	}
	switch v := c.Params["reply_markup"].(type) {
	case string:
		_ = json.Unmarshal([]byte(v), &markup)
	case map[string]any:
		raw, _ := json.Marshal(v)
		_ = json.Unmarshal(raw, &markup)
	}
	return markup.InlineKeyboard
}

// Server records Bot API calls and answers each with a stub message.
type Server struct {
	srv *httptest.Server

	mu    sync.Mutex
	calls []Call
}

const okMessage = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`

// NewServer starts a fake API server closed with t.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	params := map[string]any{}
	body, _ := io.ReadAll(r.Body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(body, &params)
	} else if err := r.ParseForm(); err == nil {
		for k := range r.Form {
			params[k] = r.Form.Get(k)
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, okMessage)
}

// URL is the API base URL to put in tele.Settings.
func (s *Server) URL() string { return s.srv.URL }

// Calls returns a copy of the recorded calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of one API method.
func (s *Server) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// NewBot builds an offline synchronous bot talking to s.
func (s *Server) NewBot(t testing.TB) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{
		URL:         s.URL(),
		Token:       "123:test",
		Offline:     true,
		Synchronous: true,
		OnError:     func(error, tele.Context) {},
	})
	if err != nil {
		t.Fatalf("teletest: new bot: %v", err)
	}
	return b
}

// TextUpdate builds a private text message update.
func TextUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		ID:     id,
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}}
}

// CallbackUpdate builds a callback update for a button with data "\f<unique>|<payload>".
func CallbackUpdate(id int, userID int64, unique, payload string) tele.Update {
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	return tele.Update{ID: id, Callback: &tele.Callback{
		ID:     "cb",
		Data:   data,
		Sender: &tele.User{ID: userID},
		Message: &tele.Message{
			ID:     100,
			Sender: &tele.User{ID: 1, IsBot: true},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	}}
}
