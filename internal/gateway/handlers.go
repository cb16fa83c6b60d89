package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is served publicly with Status only; the health RPC
// fills in the rest.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Operators int    `json:"operators,omitempty"`
	Livechat  bool   `json:"livechat,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
}

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext is one RPC request from an operator.
type RequestContext struct {
	Operator *Operator
	Frame    Frame
	Server   *Server
}

func (rc *RequestContext) Respond(payload any) {
	if err := rc.Operator.reply(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Operator.fail(rc.Frame.ID, code, message); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Params decodes the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
