package toss

import (
	"fmt"
	"strings"
)

// Kind groups gateway failures by how callers should react.
type Kind string

const (
	KindUnreachable  Kind = "unreachable"
	KindNotFound     Kind = "not_found"
	KindRejected     Kind = "rejected"
	KindUnauthorized Kind = "unauthorized"
	KindUnknown      Kind = "unknown"
)

var notFoundCodes = map[string]struct{}{
	"NOT_FOUND_PAYMENT_SESSION": {},
	"NOT_FOUND_PAYMENT":         {},
}

var unauthorizedCodes = map[string]struct{}{
	"UNAUTHORIZED_KEY": {},
	"INVALID_API_KEY":  {},
}

var rejectedCodes = map[string]struct{}{
	"ALREADY_PROCESSED_PAYMENT":      {},
	"EXCEED_MAX_DAILY_PAYMENT_COUNT": {},
	"EXCEED_MAX_PAYMENT_AMOUNT":      {},
	"INVALID_STOPPED_CARD":           {},
	"INVALID_REJECT_CARD":            {},
	"NOT_AVAILABLE_PAYMENT":          {},
}

var rejectedPrefixes = []string{"REJECT_", "FORBIDDEN_", "INVALID_CARD_"}

// GatewayError is returned for every failed confirmation call.
type GatewayError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("toss %s (%d %s): %s: %v", e.Kind, e.Status, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("toss %s (%d %s): %s", e.Kind, e.Status, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newGatewayError(status int, code, message string) *GatewayError {
	return &GatewayError{
		Kind:    ClassifyCode(code),
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// ClassifyCode maps a gateway error code onto a Kind.
func ClassifyCode(code string) Kind {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, ok := notFoundCodes[code]; ok {
		return KindNotFound
	}
	if _, ok := unauthorizedCodes[code]; ok {
		return KindUnauthorized
	}
	if _, ok := rejectedCodes[code]; ok {
		return KindRejected
	}
	for _, prefix := range rejectedPrefixes {
		if strings.HasPrefix(code, prefix) {
			return KindRejected
		}
	}
	return KindUnknown
}
