package types

// SuccessEnvelope wraps every successful API response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error shape. Details are only populated
// for codes that allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
