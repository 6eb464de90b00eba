package services

import (
	"fmt"
	"testing"
)

func TestToResponseError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation maps to 400", NewValidationError("bad model"), 400},
		{"config maps to 404", NewConfigError("unknown provider"), 404},
		{"no credential maps to 500", NewNoCredentialError("openai"), 500},
		{"credit maps to 402", NewCreditError("scope-a"), 402},
		{"upstream maps to 502", NewUpstreamError(500, "boom", nil), 502},
		{"upstream 429 passes through", NewUpstreamError(429, "slow down", nil), 429},
		{"timeout maps to 504", NewTimeoutError("deadline"), 504},
		{"internal maps to 500", NewInternalError(fmt.Errorf("oops")), 500},
		{"plain error maps to 500", fmt.Errorf("untyped"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToResponseError(tt.err)
			if appErr.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, expected %d", appErr.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := NewUpstreamError(502, "call failed", inner)

	if err.Unwrap() != inner {
		t.Error("Unwrap should expose the wrapped error")
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("KindOf = %v, expected upstream", KindOf(err))
	}
	if KindOf(inner) != KindInternal {
		t.Errorf("KindOf on plain error = %v, expected internal", KindOf(inner))
	}
}
