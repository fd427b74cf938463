package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind string

const (
	KindDomainNotAllowed           Kind = "domain_not_allowed"
	KindNotFound                   Kind = "not_found"
	KindForbiddenUpstream          Kind = "forbidden_upstream"
	KindRateLimitedUpstream        Kind = "rate_limited_upstream"
	KindServiceUnavailableUpstream Kind = "service_unavailable_upstream"
	KindUnsupportedContentType     Kind = "unsupported_content_type"
	KindTooLarge                   Kind = "too_large"
	KindExtractionFailed           Kind = "extraction_failed"
	KindBusy                       Kind = "busy"
	KindInvalidRequest             Kind = "invalid_request"
	KindMisconfigured              Kind = "misconfigured"
	KindNoAllowList                Kind = "no_allow_list"
	KindUpstreamError              Kind = "upstream_error"
)

// DetailPDF distinguishes PDF responses within KindUnsupportedContentType.
const DetailPDF = "pdf"

// HTTPStatus maps a kind onto the status code the HTTP surface returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindDomainNotAllowed, KindForbiddenUpstream:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedContentType:
		return http.StatusUnsupportedMediaType
	case KindExtractionFailed:
		return http.StatusUnprocessableEntity
	case KindBusy, KindRateLimitedUpstream:
		return http.StatusTooManyRequests
	case KindServiceUnavailableUpstream, KindNoAllowList:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Transient reports whether retrying later may succeed.
func (k Kind) Transient() bool {
	switch k {
	case KindBusy, KindRateLimitedUpstream, KindServiceUnavailableUpstream:
		return true
	}
	return false
}

// Error is a classified gateway failure.
type Error struct {
	Kind   Kind
	Detail string
	// Status is the upstream HTTP status when one was received.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": upstream HTTP %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindBusy})
// works regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or KindUpstreamError for unclassified errors.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindUpstreamError
}

// AsError returns err as a *Error, wrapping unclassified errors.
func AsError(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return newError(KindUpstreamError, err)
}

// classifyStatus maps an upstream HTTP status onto a Kind.
func classifyStatus(status int) *Error {
	var kind Kind
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		kind = KindNotFound
	case status == http.StatusForbidden || status == http.StatusUnauthorized ||
		status == http.StatusNotAcceptable || status == http.StatusUnavailableForLegalReasons:
		kind = KindForbiddenUpstream
	case status == http.StatusTooManyRequests:
		kind = KindRateLimitedUpstream
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		kind = KindServiceUnavailableUpstream
	default:
		kind = KindUpstreamError
	}
	return &Error{Kind: kind, Status: status}
}
