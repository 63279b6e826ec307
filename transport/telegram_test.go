package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "TEST:TOKEN"

type botCall struct {
	Method string
	Params map[string]string
}

// fakeBotAPI serves the Bot API methods the bot uses. Queued updates are
// returned by the first getUpdates; later polls return nothing.
type fakeBotAPI struct {
	mu      sync.Mutex
	updates []map[string]interface{}
	calls   []botCall
	sent    chan string
}

func newFakeBotAPI(t *testing.T, updates ...map[string]interface{}) (*fakeBotAPI, *httptest.Server) {
	api := &fakeBotAPI{updates: updates, sent: make(chan string, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"ok": false, "error_code": 404, "description": "Not Found"}`))
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)
		params := requestParams(r)

		var result interface{} = true
		switch method {
		case "getMe":
			result = map[string]interface{}{"id": 42, "is_bot": true, "first_name": "Agent", "username": "agent_bot"}
		case "getUpdates":
			api.mu.Lock()
			pending := api.updates
			api.updates = nil
			api.mu.Unlock()
			if len(pending) == 0 {
				time.Sleep(20 * time.Millisecond)
				pending = []map[string]interface{}{}
			}
			result = pending
		case "sendMessage":
			chatID := json.Number(params["chat_id"])
			result = map[string]interface{}{
				"message_id": 1,
				"date":       0,
				"chat":       map[string]interface{}{"id": chatID, "type": "private"},
				"text":       params["text"],
			}
		}

		if method != "getUpdates" {
			api.mu.Lock()
			api.calls = append(api.calls, botCall{Method: method, Params: params})
			api.mu.Unlock()
		}
		if method == "sendMessage" {
			api.sent <- params["text"]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": result})
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

// requestParams flattens a Bot API request body, whichever encoding the
// client chose, into strings.
func requestParams(r *http.Request) map[string]string {
	out := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		for k, v := range raw {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	_ = r.ParseMultipartForm(1 << 20)
	for k, v := range r.Form {
		if len(v) > 0 {
			out[k] = strings.Trim(v[0], `"`)
		}
	}
	return out
}

func (api *fakeBotAPI) methods() []string {
	api.mu.Lock()
	defer api.mu.Unlock()
	var out []string
	for _, c := range api.calls {
		out = append(out, c.Method)
	}
	return out
}

func (api *fakeBotAPI) call(i int) botCall {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.calls[i]
}

func newTestBot(t *testing.T, agent *fakeAgent, url string) *TelegramBot {
	t.Helper()
	b, err := NewTelegramBot(agent, nil, TelegramConfig{
		Token:       testToken,
		APIURL:      url,
		PollTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return b
}

func textUpdate(updateID, userID int64, name, text string) map[string]interface{} {
	return map[string]interface{}{
		"update_id": updateID,
		"message": map[string]interface{}{
			"message_id": updateID,
			"date":       0,
			"from":       map[string]interface{}{"id": userID, "is_bot": false, "first_name": name},
			"chat":       map[string]interface{}{"id": userID, "type": "private"},
			"text":       text,
		},
	}
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sendMessage")
		return ""
	}
}

func TestTelegramHandleMessageChunksReply(t *testing.T) {
	agent := &fakeAgent{reply: func(string) string { return strings.Repeat("z", MaxMessageLength+10) }}
	api, srv := newFakeBotAPI(t)
	b := newTestBot(t, agent, srv.URL)

	b.HandleMessage(context.Background(), &models.Message{
		From: &models.User{ID: 7, FirstName: "Ana"},
		Chat: models.Chat{ID: 99},
		Text: "write me a novel",
	})

	assert.Equal(t, []string{"7:write me a novel"}, agent.messages())
	assert.Len(t, receive(t, api.sent), MaxMessageLength)
	assert.Len(t, receive(t, api.sent), 10)
	assert.Equal(t, []string{"sendChatAction", "sendMessage", "sendMessage"}, api.methods())
	assert.Equal(t, "typing", api.call(0).Params["action"])
	assert.Equal(t, "99", api.call(1).Params["chat_id"])
}

func TestTelegramCommands(t *testing.T) {
	agent := &fakeAgent{}
	api, srv := newFakeBotAPI(t)
	b := newTestBot(t, agent, srv.URL)
	msg := func(text string) *models.Message {
		return &models.Message{From: &models.User{ID: 7, FirstName: "Ana"}, Chat: models.Chat{ID: 7}, Text: text}
	}

	b.HandleMessage(context.Background(), msg("/start"))
	assert.True(t, strings.HasPrefix(receive(t, api.sent), "👋 Hello Ana!"))

	b.HandleMessage(context.Background(), msg("/clear@my_bot"))
	assert.Equal(t, ClearedReply, receive(t, api.sent))

	b.HandleMessage(context.Background(), msg("/nonsense"))
	assert.Empty(t, agent.messages())
	assert.Equal(t, []string{"sendMessage", "sendMessage"}, api.methods(), "unknown commands are ignored")
}

func TestTelegramRunAnswersPolledMessages(t *testing.T) {
	agent := &fakeAgent{}
	api, srv := newFakeBotAPI(t,
		textUpdate(10, 1, "Ana", "hi"),
		map[string]interface{}{"update_id": 11},
	)
	b := newTestBot(t, agent, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	assert.Equal(t, "echo: hi", receive(t, api.sent))
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{"1:hi"}, agent.messages())
	assert.Equal(t, "getMe", api.methods()[0])
}

func TestTelegramErrorsHideToken(t *testing.T) {
	b, err := NewTelegramBot(&fakeAgent{}, nil, TelegramConfig{Token: testToken, APIURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	err = b.SendMessage(context.Background(), 1, "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
	assert.True(t, strings.HasPrefix(err.Error(), "telegram sendMessage: "), err.Error())

	_, srv := newFakeBotAPI(t)
	b, err = NewTelegramBot(&fakeAgent{}, nil, TelegramConfig{Token: "WRONG:TOKEN", APIURL: srv.URL}, nil)
	require.NoError(t, err)
	err = b.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "telegram getMe: "), err.Error())
	assert.NotContains(t, err.Error(), "WRONG:TOKEN")
}

func TestTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegramBot(&fakeAgent{}, nil, TelegramConfig{}, nil)
	assert.Error(t, err)
}
