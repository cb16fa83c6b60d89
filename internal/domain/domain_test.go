package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomNotFirstMessage(t *testing.T) {
	tests := []struct {
		name string
		room *Room
		want bool
	}{
		{"nil room", nil, false},
		{"no fields", &Room{ID: "r1"}, false},
		{"false", &Room{CustomFields: map[string]any{FieldNotFirstMessage: false}}, false},
		{"true", &Room{CustomFields: map[string]any{FieldNotFirstMessage: true}}, true},
		{"wrong type", &Room{CustomFields: map[string]any{FieldNotFirstMessage: "true"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.room.NotFirstMessage())
		})
	}
}

func TestVisitorHasField(t *testing.T) {
	v := &Visitor{Token: "tok", CustomFields: map[string]any{"city": "Berlin"}}
	assert.True(t, v.HasField("city"))
	assert.False(t, v.HasField("age"))

	var nilVisitor *Visitor
	assert.False(t, nilVisitor.HasField("city"))
}

func TestNormalizedMessageAppend(t *testing.T) {
	m := NormalizedMessage{Messages: []Fragment{TextFragment("Hi")}}
	m.Append(NormalizedMessage{Messages: []Fragment{TextFragment("Hello there")}, IsFallback: true})

	assert.Equal(t, []string{"Hi", "Hello there"}, m.Texts())
	assert.False(t, m.IsFallback, "Append must not copy the fallback flag")
}

func TestQuickReplyGroupJSON(t *testing.T) {
	f := QuickReplyGroup("Pick one", []QuickReplyOption{
		{Text: "Yes", ActionID: "yes", ButtonStyle: "primary"},
		{Text: "No"},
	})

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "quickReplies",
		"text": "Pick one",
		"options": [
			{"text": "Yes", "actionId": "yes", "buttonStyle": "primary"},
			{"text": "No"}
		]
	}`, string(data))
}

func TestTextFragmentOmitsOptions(t *testing.T) {
	data, err := json.Marshal(TextFragment("plain"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"text","text":"plain"}`, string(data))
}

func TestOutgoingFromFragment(t *testing.T) {
	opts := []QuickReplyOption{{Text: "A"}}
	out := OutgoingFromFragment("dialogflow.bot", QuickReplyGroup("Q", opts))
	assert.Equal(t, OutgoingMessage{Sender: "dialogflow.bot", Text: "Q", Options: opts}, out)
}
