package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/flowbridge/internal/config"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/livechat"
)

func payload(messageID, text string) map[string]any {
	return payloadForRoom("r1", messageID, text)
}

func payloadForRoom(roomID, messageID, text string) map[string]any {
	return map[string]any{
		"messageId": messageID,
		"text":      text,
		"sender":    map[string]any{"username": "visitor"},
		"room": map[string]any{
			"id":       roomID,
			"type":     "livechat",
			"isOpen":   true,
			"servedBy": map[string]any{"username": testBot},
		},
		"visitor": map[string]any{
			"token":        "tok",
			"name":         "Ada",
			"customFields": map[string]any{"plan": "pro"},
		},
	}
}

func (f *fixture) post(t *testing.T, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/livechat/messages", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestWebhookRequiresAuth(t *testing.T) {
	f := newFixture(t)

	resp, out := f.post(t, "", payload("m1", "hello"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", out["error"])

	resp, _ = f.post(t, "wrong", payload("m1", "hello"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, f.client.Calls())
}

func TestWebhookRateLimitsFailedAuth(t *testing.T) {
	f := newFixture(t)
	for range authRateMaxFails {
		resp, _ := f.post(t, "wrong", payload("m1", "hello"))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, _ := f.post(t, testToken, payload("m1", "hello"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)

	missingRoom := payload("m1", "hello")
	delete(missingRoom, "room")

	badType := payload("m1", "hello")
	badType["room"].(map[string]any)["type"] = "group"

	emptyID := payload("", "hello")

	badField := payload("m1", "hello")
	badField["visitor"].(map[string]any)["customFields"] = map[string]any{"nested": map[string]any{"a": 1}}

	badDate := payload("m1", "hello")
	badDate["editedAt"] = "yesterday"

	for name, body := range map[string]any{
		"not json":      []byte("{nope"),
		"missing room":  missingRoom,
		"bad room type": badType,
		"empty id":      emptyID,
		"nested field":  badField,
		"bad editedAt":  badDate,
	} {
		t.Run(name, func(t *testing.T) {
			resp, out := f.post(t, testToken, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
	assert.Empty(t, f.client.Calls())
}

func TestWebhookHandlesMessage(t *testing.T) {
	f := newFixture(t)

	resp, out := f.post(t, testToken, payload("m1", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, out["skipped"])

	posted, ok := out["posted"].([]any)
	require.True(t, ok)
	require.Len(t, posted, 2)
	assert.Equal(t, "Welcome!", posted[0].(map[string]any)["text"])
	assert.Equal(t, "echo: hello", posted[1].(map[string]any)["text"])

	ctx := context.Background()
	room, err := f.store.GetRoomByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, testBot, room.ServedBy)
	assert.True(t, room.NotFirstMessage())

	visitor, err := f.store.GetVisitorByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "Ada", visitor.Name)
	assert.Equal(t, "pro", visitor.CustomFields["plan"])

	// The visitor profile was forwarded before the welcome event.
	calls := f.client.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Request.Text(), "plan:pro")
}

func TestWebhookKeepsExistingVisitorFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveVisitor(ctx, &domain.Visitor{
		Token:        "tok",
		CustomFields: map[string]any{"plan": "enterprise"},
	}))

	resp, _ := f.post(t, testToken, payload("m1", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	visitor, err := f.store.GetVisitorByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", visitor.CustomFields["plan"])
}

func TestWebhookSkipsRoomsServedByHumans(t *testing.T) {
	f := newFixture(t)

	body := payload("m1", "hello")
	body["room"].(map[string]any)["servedBy"] = map[string]any{"username": "alice"}

	resp, out := f.post(t, testToken, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, livechat.SkipNotServed, out["skipped"])
	assert.Empty(t, f.client.Calls())
}

func TestWebhookEscalatesRepeatedFallbacks(t *testing.T) {
	f := newFixture(t)

	_, out := f.post(t, testToken, payload("m1", "?? one"))
	assert.Nil(t, out["escalated"])

	resp, out := f.post(t, testToken, payload("m2", "?? two"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["escalated"])

	posted := out["posted"].([]any)
	assert.Equal(t, config.DefaultHandoverMessage, posted[len(posted)-1].(map[string]any)["text"])

	records, err := f.store.ListHandovers(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "support", records[0].Department)
}

func TestWebhookBroadcastsToOperators(t *testing.T) {
	f := newFixture(t)
	conn := f.authenticated(t)
	// Registration completes before the first RPC is served.
	call(t, conn, "h1", "health", nil)

	resp, _ := f.post(t, testToken, payload("m1", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ev Frame
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, EventLivechatMessage, ev.Event)
	assert.Positive(t, ev.Seq)
	assert.True(t, strings.Contains(string(ev.Payload), `"messageId":"m1"`))
}

func TestWebhookUnconfigured(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Auth.Token = testToken
	srv := New(cfg, testLog())
	f := &fixture{srv: srv}
	f.ts = newTestHTTPServer(t, srv)

	resp, out := f.post(t, testToken, payload("m1", "hello"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, out["error"])
}
