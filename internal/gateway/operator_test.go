package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/flowbridge/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestOperatorWatch(t *testing.T) {
	op := &Operator{ID: "conn-1"}
	assert.True(t, op.Watching("r1"))
	assert.Nil(t, op.Rooms())

	op.Watch([]string{"r2", "r1", "r2"})
	assert.True(t, op.Watching("r1"))
	assert.True(t, op.Watching("r2"))
	assert.False(t, op.Watching("r3"))
	assert.Equal(t, []string{"r1", "r2"}, op.Rooms())

	op.Watch(nil)
	assert.True(t, op.Watching("r3"))
}

func TestOperatorWriteAfterClose(t *testing.T) {
	op := &Operator{ID: "conn-1", closed: true}
	assert.ErrorIs(t, op.reply("req-1", map[string]any{}), ErrOperatorClosed)
	assert.ErrorIs(t, op.fail("req-1", "internal", "boom"), ErrOperatorClosed)
	assert.NoError(t, op.Close())
}

func TestOperatorHub(t *testing.T) {
	hub := newOperatorHub(testLog())
	assert.Equal(t, 0, hub.count())

	// Closed operators never touch their nil sockets.
	a := &Operator{ID: "conn-1", closed: true}
	b := &Operator{ID: "conn-2", closed: true}
	b.Watch([]string{"r9"})
	hub.join(a)
	hub.join(b)
	assert.Equal(t, 2, hub.count())

	assert.Equal(t, 0, hub.publish("r1", EventLivechatMessage, map[string]any{}, 1))

	hub.leave("conn-1")
	hub.leave("missing")
	assert.Equal(t, 1, hub.count())

	hub.closeAll()
	assert.Equal(t, 0, hub.count())
}

func TestRoomsWatchFiltersEvents(t *testing.T) {
	f := newFixture(t)
	watcher := f.authenticated(t)
	everyone := f.authenticated(t)

	resp := call(t, watcher, "w1", "rooms.watch", roomsWatchParams{RoomIDs: []string{"r2"}})
	require.True(t, *resp.OK)
	assert.JSONEq(t, `{"rooms":["r2"]}`, string(resp.Payload))
	call(t, everyone, "h1", "health", nil)

	first, _ := f.post(t, testToken, payloadForRoom("r1", "m1", "hello"))
	require.Equal(t, http.StatusOK, first.StatusCode)
	second, _ := f.post(t, testToken, payloadForRoom("r2", "m2", "hello"))
	require.Equal(t, http.StatusOK, second.StatusCode)

	// The watcher skips r1 and sees r2 first; the other operator sees both.
	var ev Frame
	require.NoError(t, watcher.ReadJSON(&ev))
	assert.Equal(t, "r2", eventRoom(t, ev))

	require.NoError(t, everyone.ReadJSON(&ev))
	assert.Equal(t, "r1", eventRoom(t, ev))
	require.NoError(t, everyone.ReadJSON(&ev))
	assert.Equal(t, "r2", eventRoom(t, ev))

	requireErrorCode(t, call(t, watcher, "w2", "rooms.watch", roomsWatchParams{RoomIDs: []string{" "}}), "invalid_params")
}

func eventRoom(t *testing.T, ev Frame) string {
	t.Helper()
	require.Equal(t, EventLivechatMessage, ev.Event)
	var body struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	return body.RoomID
}
