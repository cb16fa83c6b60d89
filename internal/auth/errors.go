package auth

import "fmt"

// AuthError reports a failure to obtain a bearer token.
type AuthError struct {
	Op         string // "sign", "exchange", "decode"
	StatusCode int    // token endpoint status, 0 for transport errors
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("auth %s: token endpoint returned %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("auth %s failed", e.Op)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// temporary reports whether a retry may succeed.
func (e *AuthError) temporary() bool {
	if e.Op != "exchange" {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= 500
}
