package domain

import "time"

// FragmentKind tags a NormalizedMessage fragment.
type FragmentKind string

const (
	FragmentText         FragmentKind = "text"
	FragmentQuickReplies FragmentKind = "quickReplies"
)

// QuickReplyOption is one selectable answer in a quick-reply group.
type QuickReplyOption struct {
	Text        string `json:"text"`
	ActionID    string `json:"actionId,omitempty"`
	ButtonStyle string `json:"buttonStyle,omitempty"`
}

// Fragment is either a plain text line or a quick-reply group.
// Options is only set for FragmentQuickReplies.
type Fragment struct {
	Kind    FragmentKind       `json:"kind"`
	Text    string             `json:"text"`
	Options []QuickReplyOption `json:"options,omitempty"`
}

// TextFragment builds a plain text fragment.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// QuickReplyGroup builds a quick-reply fragment.
func QuickReplyGroup(text string, options []QuickReplyOption) Fragment {
	return Fragment{Kind: FragmentQuickReplies, Text: text, Options: options}
}

// NormalizedMessage is a provider-agnostic agent reply.
type NormalizedMessage struct {
	Messages   []Fragment `json:"messages"`
	IsFallback bool       `json:"isFallback"`
	SessionID  string     `json:"sessionId,omitempty"`
}

// Append adds other's fragments after m's own.
func (m *NormalizedMessage) Append(other NormalizedMessage) {
	m.Messages = append(m.Messages, other.Messages...)
}

// Texts returns the text of every fragment, in order.
func (m NormalizedMessage) Texts() []string {
	out := make([]string, 0, len(m.Messages))
	for _, f := range m.Messages {
		out = append(out, f.Text)
	}
	return out
}

// ConversationEvent triggers an agent intent by event name instead of text.
type ConversationEvent struct {
	Name         string         `json:"name"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	LanguageCode string         `json:"languageCode"`
}

// InboundMessage is a message posted into a livechat room.
type InboundMessage struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"roomId"`
	Text           string     `json:"text"`
	SenderUsername string     `json:"senderUsername"`
	VisitorToken   string     `json:"visitorToken,omitempty"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

// OutgoingMessage is what the bot posts back into a room.
type OutgoingMessage struct {
	Sender  string             `json:"sender"`
	Text    string             `json:"text"`
	Options []QuickReplyOption `json:"options,omitempty"`
}

// Message is a persisted room message.
type Message struct {
	ID        string             `json:"id"`
	RoomID    string             `json:"roomId"`
	Sender    string             `json:"sender"`
	Text      string             `json:"text"`
	Options   []QuickReplyOption `json:"options,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// OutgoingFromFragment renders a fragment as a room message from sender.
func OutgoingFromFragment(sender string, f Fragment) OutgoingMessage {
	return OutgoingMessage{Sender: sender, Text: f.Text, Options: f.Options}
}
