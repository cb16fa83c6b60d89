package dialogflow

import (
	"encoding/json"
	"fmt"

	df "google.golang.org/api/dialogflow/v2"

	"github.com/soyeahso/flowbridge/internal/domain"
)

// RequestKind tags a detect-intent request.
type RequestKind string

const (
	KindEvent RequestKind = "event"
	KindText  RequestKind = "text"
)

// Request is either an event trigger or visitor text. Build one with
// EventRequest or TextRequest.
type Request struct {
	kind  RequestKind
	event domain.ConversationEvent
	text  string
	lang  string
}

// EventRequest triggers the intent bound to ev.Name.
func EventRequest(ev domain.ConversationEvent) Request {
	return Request{kind: KindEvent, event: ev, lang: ev.LanguageCode}
}

// TextRequest sends free text. An empty languageCode uses the client default.
func TextRequest(text, languageCode string) Request {
	return Request{kind: KindText, text: text, lang: languageCode}
}

// Kind reports which variant r is.
func (r Request) Kind() RequestKind { return r.kind }

// Text returns the text of a TextRequest, or "" for events.
func (r Request) Text() string { return r.text }

// Event returns the event of an EventRequest.
func (r Request) Event() domain.ConversationEvent { return r.event }

func (r Request) body(defaultLang string) (*df.GoogleCloudDialogflowV2DetectIntentRequest, error) {
	lang := r.lang
	if lang == "" {
		lang = defaultLang
	}

	switch r.kind {
	case KindEvent:
		return eventBody(r.event, lang)
	case KindText:
		return textBody(r.text, lang), nil
	default:
		return nil, fmt.Errorf("unknown request kind %q", r.kind)
	}
}

func eventBody(ev domain.ConversationEvent, lang string) (*df.GoogleCloudDialogflowV2DetectIntentRequest, error) {
	input := &df.GoogleCloudDialogflowV2EventInput{
		Name:         ev.Name,
		LanguageCode: lang,
	}
	if len(ev.Parameters) > 0 {
		params, err := json.Marshal(ev.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encoding event parameters: %w", err)
		}
		input.Parameters = params
	}
	return &df.GoogleCloudDialogflowV2DetectIntentRequest{
		QueryInput: &df.GoogleCloudDialogflowV2QueryInput{Event: input},
	}, nil
}

func textBody(text, lang string) *df.GoogleCloudDialogflowV2DetectIntentRequest {
	return &df.GoogleCloudDialogflowV2DetectIntentRequest{
		QueryInput: &df.GoogleCloudDialogflowV2QueryInput{
			Text: &df.GoogleCloudDialogflowV2TextInput{
				Text:         text,
				LanguageCode: lang,
			},
		},
	}
}
