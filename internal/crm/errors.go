package crm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies upstream failures for the orchestrator's fallback
// policy.
type ErrorKind string

const (
	// KindTransient covers 5xx responses and timeouts. A traversal stops and
	// returns what was collected; nothing is recorded to the failure log.
	KindTransient ErrorKind = "transient"
	// KindAuth covers 401s and expired-token body signatures. A traversal
	// stops and the caller records a failure for the location.
	KindAuth ErrorKind = "auth"
	// KindUnsupported covers 422-class responses: the endpoint feature is not
	// available for this upstream account and retrying will not help.
	KindUnsupported ErrorKind = "unsupported"
	// KindMalformed covers responses whose shape could not be interpreted.
	KindMalformed ErrorKind = "malformed"
)

// UpstreamError is a classified failure from the CRM API.
type UpstreamError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("crm %s: %s error (status %d): %s", e.Endpoint, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm %s: %s error: %s", e.Endpoint, e.Kind, e.Message)
}

// IsAuth reports whether err is an authentication-class upstream failure.
func IsAuth(err error) bool {
	return errorIsKind(err, KindAuth)
}

// IsUnsupported reports whether err marks the endpoint as unavailable for
// the upstream account.
func IsUnsupported(err error) bool {
	return errorIsKind(err, KindUnsupported)
}

// IsTransient reports whether err is a retryable-class upstream failure.
func IsTransient(err error) bool {
	return errorIsKind(err, KindTransient)
}

func errorIsKind(err error, kind ErrorKind) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.Kind == kind
}

// Body fragments that mark an expired or rejected credential even when the
// upstream returns a non-401 status.
var authBodySignatures = []string{
	"token expired",
	"jwt expired",
	"invalid token",
	"invalid jwt",
	"unauthorized",
	"authentication failed",
}

func classifyStatus(status int, body []byte) ErrorKind {
	switch {
	case status == 401:
		return KindAuth
	case status == 422:
		return KindUnsupported
	case status >= 500:
		return KindTransient
	}
	lowered := strings.ToLower(string(body))
	for _, signature := range authBodySignatures {
		if strings.Contains(lowered, signature) {
			return KindAuth
		}
	}
	// Remaining 4xx: treat as transient so a single bad page prefers an
	// undercount over failing the whole computation.
	return KindTransient
}
