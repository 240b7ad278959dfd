package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the flat error body shared by every endpoint.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// MessageEnvelope answers webhook deliveries that need no processing.
type MessageEnvelope struct {
	Message string `json:"message"`
}
