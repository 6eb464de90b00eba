package services

import (
	"errors"
	"fmt"

	"github.com/loopgate/loopgate/pkg/response"
)

// ErrorKind is the closed set of failure categories the gateway surfaces.
// Every error leaving the service layer carries exactly one kind; the HTTP
// boundary decodes it once instead of sniffing error shapes downstream.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"    // malformed request, fails before any upstream call
	KindConfig       ErrorKind = "config"        // provider unknown, disabled, or not set up
	KindNoCredential ErrorKind = "no_credential" // provider configured but credentials exhausted/inactive
	KindCredit       ErrorKind = "credit"        // insufficient billing balance
	KindUpstream     ErrorKind = "upstream"      // adapter call failed; Status carries the provider code
	KindTimeout      ErrorKind = "timeout"       // overall call deadline exceeded
	KindInternal     ErrorKind = "internal"      // unexpected
)

// Error is the tagged error variant used throughout the gateway.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int // provider-style status code, set for KindUpstream
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewConfigError(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

// NewNoCredentialError signals a provider that is configured but currently
// has no active credential.
func NewNoCredentialError(provider string) *Error {
	return &Error{Kind: KindNoCredential, Message: fmt.Sprintf("no active credential available for provider %q", provider)}
}

// NewProviderNotConfiguredError signals a provider the operator never set
// up: it has no credentials at all.
func NewProviderNotConfiguredError(provider string) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf("provider %q has no credentials configured", provider)}
}

func NewCreditError(scope string) *Error {
	return &Error{Kind: KindCredit, Message: fmt.Sprintf("insufficient credit balance for scope %q", scope)}
}

func NewUpstreamError(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Status: status, Err: err}
}

func NewTimeoutError(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg}
}

func NewInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind from any error; unknown errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ToResponseError decodes a gateway error into the HTTP envelope error once,
// at the boundary.
func ToResponseError(err error) *response.AppError {
	var e *Error
	if !errors.As(err, &e) {
		return response.NewServerError(err.Error())
	}

	switch e.Kind {
	case KindValidation:
		return response.NewBadRequest(e.Message)
	case KindConfig:
		return response.NewNotFound(e.Message)
	case KindNoCredential:
		return response.NewServerError(e.Message)
	case KindCredit:
		return response.NewPaymentRequired(e.Message)
	case KindUpstream:
		if e.Status == 429 {
			return response.NewTooManyRequests(e.Message)
		}
		return response.NewBadGateway(e.Message)
	case KindTimeout:
		return response.NewGatewayTimeout(e.Message)
	default:
		return response.NewServerError(e.Message)
	}
}
