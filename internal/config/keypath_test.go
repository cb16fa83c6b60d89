package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyPath(t *testing.T) {
	tests := []struct {
		in      string
		want    KeyPath
		wantErr bool
	}{
		{"dialogflow", KeyPath{"dialogflow"}, false},
		{"dialogflow.projectId", KeyPath{"dialogflow", "projectId"}, false},
		{"handover.broker.url", KeyPath{"handover", "broker", "url"}, false},
		{"hooks.reply_sent", KeyPath{"hooks", "reply_sent"}, false},
		{"", nil, true},
		{"dialogflow..projectId", nil, true},
		{".bot", nil, true},
		{"bot.", nil, true},
		{"bot.user name", nil, true},
		{"gateway.auth.$token", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKeyPath(tt.in)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestKeyPathGet(t *testing.T) {
	root := map[string]any{
		"fallback": map[string]any{"limit": 3, "target": map[string]any{"department": "support"}},
		"simple":   "value",
	}

	tests := []struct {
		key  string
		want any
		ok   bool
	}{
		{"fallback.limit", 3, true},
		{"fallback.target.department", "support", true},
		{"simple", "value", true},
		{"missing", nil, false},
		{"simple.sub", nil, false},
		{"fallback.target.missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			k, err := ParseKeyPath(tt.key)
			require.NoError(t, err)
			got, ok := k.Get(root)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyPathSet(t *testing.T) {
	root := map[string]any{"bot": "not-a-map"}

	KeyPath{"fallback", "limit"}.Set(root, 5)
	KeyPath{"bot", "username"}.Set(root, "df.bot")

	assert.Equal(t, map[string]any{
		"fallback": map[string]any{"limit": 5},
		"bot":      map[string]any{"username": "df.bot"},
	}, root)
}

func TestKeyPathUnset(t *testing.T) {
	root := map[string]any{
		"bot": map[string]any{"username": "df.bot", "handoverMessage": "bye"},
		"str": "x",
	}

	assert.True(t, KeyPath{"bot", "username"}.Unset(root))
	assert.Equal(t, map[string]any{"handoverMessage": "bye"}, root["bot"])

	assert.False(t, KeyPath{"bot", "username"}.Unset(root))
	assert.False(t, KeyPath{"a", "b"}.Unset(root))
	assert.False(t, KeyPath{"str", "b"}.Unset(root))
	assert.True(t, KeyPath{"str"}.Unset(root))
}
