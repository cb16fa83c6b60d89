package dialogflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	df "google.golang.org/api/dialogflow/v2"

	"github.com/soyeahso/flowbridge/internal/domain"
)

// HandoverParam is the response parameter that asks for a human agent.
const HandoverParam = "handover"

// Result is a normalized detect-intent reply plus the raw signals the
// side-effect pipeline needs.
type Result struct {
	Message    domain.NormalizedMessage
	Parameters map[string]any
	Handover   any
	ResponseID string
	Intent     string
}

// customPayload is the shape of a custom payload carrying quick replies.
type customPayload struct {
	QuickReplies *struct {
		Text    string                    `json:"text"`
		Options []domain.QuickReplyOption `json:"options"`
	} `json:"quickReplies"`
}

func normalize(sessionID string, resp *df.GoogleCloudDialogflowV2DetectIntentResponse) (*Result, error) {
	res := &Result{
		Message:    domain.NormalizedMessage{SessionID: sessionID},
		ResponseID: resp.ResponseId,
	}
	qr := resp.QueryResult
	if qr == nil {
		return res, nil
	}

	for _, m := range qr.FulfillmentMessages {
		if m == nil || !defaultPlatform(m.Platform) {
			continue
		}
		res.Message.Messages = append(res.Message.Messages, fragments(m)...)
	}
	if len(res.Message.Messages) == 0 && qr.FulfillmentText != "" {
		res.Message.Messages = []domain.Fragment{domain.TextFragment(qr.FulfillmentText)}
	}

	if qr.Intent != nil {
		res.Message.IsFallback = qr.Intent.IsFallback
		res.Intent = qr.Intent.DisplayName
	}

	params, err := decodeParameters(qr.Parameters)
	if err != nil {
		return nil, err
	}
	res.Parameters = params
	res.Handover = params[HandoverParam]
	return res, nil
}

func defaultPlatform(p string) bool {
	return p == "" || p == "PLATFORM_UNSPECIFIED"
}

func fragments(m *df.GoogleCloudDialogflowV2IntentMessage) []domain.Fragment {
	var out []domain.Fragment

	if m.Text != nil {
		for _, t := range m.Text.Text {
			if t != "" {
				out = append(out, domain.TextFragment(t))
			}
		}
	}

	if m.QuickReplies != nil && len(m.QuickReplies.QuickReplies) > 0 {
		opts := make([]domain.QuickReplyOption, 0, len(m.QuickReplies.QuickReplies))
		for _, q := range m.QuickReplies.QuickReplies {
			opts = append(opts, domain.QuickReplyOption{Text: q})
		}
		out = append(out, domain.QuickReplyGroup(m.QuickReplies.Title, opts))
	}

	if len(m.Payload) > 0 {
		var p customPayload
		if err := json.Unmarshal(m.Payload, &p); err == nil && p.QuickReplies != nil && len(p.QuickReplies.Options) > 0 {
			out = append(out, domain.QuickReplyGroup(p.QuickReplies.Text, p.QuickReplies.Options))
		}
	}

	return out
}

// decodeParameters keeps numbers as json.Number so they round-trip to
// custom fields without float formatting.
func decodeParameters(raw []byte) (map[string]any, error) {
	params := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return params, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("decoding parameters: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
