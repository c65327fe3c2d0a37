package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// Debug is only populated outside production.
	Debug any `json:"debug,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
