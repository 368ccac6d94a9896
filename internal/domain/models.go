package domain

// Domain contains the request-scoped models shared by the API and the relay.

// RelayRequest is the body accepted by POST /ping.
type RelayRequest struct {
	URL string `json:"url"`
}

// FieldError is one entry of a validation failure's detail list.
// Loc holds string keys and integer positions, e.g. ["body", "url"].
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ValidationFailure is the 422 payload for a request body that does not bind.
type ValidationFailure struct {
	Msg    string       `json:"msg"`
	Detail []FieldError `json:"detail"`
}

// BindResult is the outcome of binding a request body: exactly one of
// Request or Failure is meaningful, selected by OK.
type BindResult struct {
	Request RelayRequest
	Failure *ValidationFailure
}

// Bound wraps a successfully bound request.
func Bound(req RelayRequest) BindResult {
	return BindResult{Request: req}
}

// Rejected wraps a validation failure.
func Rejected(f ValidationFailure) BindResult {
	return BindResult{Failure: &f}
}

// OK reports whether the body bound successfully.
func (b BindResult) OK() bool {
	return b.Failure == nil
}
