package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrEncodingFailed        = errors.New("encoding failed")
	ErrEncodingTimedOut      = errors.New("encoding timed out")
	ErrStillTooLarge         = errors.New("still too large")
	ErrExternalService       = errors.New("external service error")
	ErrSchemaViolation       = errors.New("schema violation")
	ErrSessionNotFound       = errors.New("session not found")
	ErrValidation            = errors.New("validation error")
	ErrConfiguration         = errors.New("configuration error")
)

// ErrPayloadTooLarge is the distinct external-service failure for uploads the
// remote side refuses on size. It matches ErrExternalService as well.
var ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrExternalService)

// Kind tags persisted on failed sessions.
const (
	KindDependencyUnavailable = "dependency_unavailable"
	KindEncodingFailed        = "encoding_failed"
	KindEncodingTimedOut      = "encoding_timed_out"
	KindStillTooLarge         = "still_too_large"
	KindPayloadTooLarge       = "payload_too_large"
	KindExternalService       = "external_service_error"
	KindSchemaViolation       = "schema_violation"
	KindSessionNotFound       = "session_not_found"
	KindValidation            = "validation_error"
	KindConfiguration         = "configuration_error"
	KindInterrupted           = "interrupted"
	KindUnknown               = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to the taxonomy tag stored alongside a failed session.
// PayloadTooLarge is checked before the generic external service marker.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDependencyUnavailable):
		return KindDependencyUnavailable
	case errors.Is(err, ErrEncodingTimedOut):
		return KindEncodingTimedOut
	case errors.Is(err, ErrEncodingFailed):
		return KindEncodingFailed
	case errors.Is(err, ErrStillTooLarge):
		return KindStillTooLarge
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrExternalService):
		return KindExternalService
	case errors.Is(err, ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
