package engine

import (
	"errors"
	"fmt"
)

// EngineError represents a failure the engine surfaces to operators.
//
// Engine errors are one of:
//   - Precondition: the run cannot start (unconfirmed replace, bad request)
//   - Integrity: stored data breaks a uniqueness assumption (two registries
//     with one name, two entities for one filing key)
//   - Data quality: a value could not be normalized; never fatal
//
// Transient store failures are not EngineErrors; they are wrapped with
// fmt.Errorf and propagated.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Registry identifies the affected registry (name or ID).
	Registry string

	// Key is the natural key involved, if any.
	Key string

	// Details contains additional context.
	Details map[string]string
}

// IntegrityError is an EngineError with Code ErrCodeIntegrity.
type IntegrityError = EngineError

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodePrecondition indicates a run was refused before any work began.
	ErrCodePrecondition ErrorCode = "PRECONDITION"

	// ErrCodeIntegrity indicates duplicate data that must not be auto-resolved.
	ErrCodeIntegrity ErrorCode = "INTEGRITY"

	// ErrCodeDataQuality indicates a value kept raw because it could not be parsed.
	ErrCodeDataQuality ErrorCode = "DATA_QUALITY"
)

// ErrReplaceNotConfirmed is returned by a replace sync without ConfirmReplace.
var ErrReplaceNotConfirmed = &EngineError{
	Code:    ErrCodePrecondition,
	Message: "replace deletes every stored record of the registry and requires explicit confirmation",
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	switch {
	case e.Registry != "" && e.Key != "":
		return fmt.Sprintf("%s: %s (registry=%s, key=%s)", e.Code, e.Message, e.Registry, e.Key)
	case e.Registry != "":
		return fmt.Sprintf("%s: %s (registry=%s)", e.Code, e.Message, e.Registry)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPreconditionError returns true if the error is a precondition failure.
// Uses errors.As to handle wrapped errors.
func IsPreconditionError(err error) bool {
	return hasCode(err, ErrCodePrecondition)
}

// IsIntegrityError returns true if the error is an integrity violation.
// Uses errors.As to handle wrapped errors.
func IsIntegrityError(err error) bool {
	return hasCode(err, ErrCodeIntegrity)
}

// IsDataQualityError returns true if the error is a data-quality problem.
func IsDataQualityError(err error) bool {
	return hasCode(err, ErrCodeDataQuality)
}

func hasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// NewPreconditionError creates an EngineError for a refused run.
func NewPreconditionError(format string, args ...any) *EngineError {
	return &EngineError{
		Code:    ErrCodePrecondition,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDuplicateRegistryError reports more than one metadata record for a
// registry name.
func NewDuplicateRegistryError(name string, count int) *IntegrityError {
	return &EngineError{
		Code:     ErrCodeIntegrity,
		Message:  fmt.Sprintf("%d metadata records share the registry name", count),
		Registry: name,
		Details: map[string]string{
			"count": fmt.Sprintf("%d", count),
		},
	}
}

// NewMultipleMatchError reports a filing whose match key resolves to more
// than one entity.
func NewMultipleMatchError(registryID, field, key, filingID string, entityIDs []string) *IntegrityError {
	details := map[string]string{
		"field":  field,
		"filing": filingID,
		"count":  fmt.Sprintf("%d", len(entityIDs)),
	}
	for i, id := range entityIDs {
		details[fmt.Sprintf("entity_%d", i)] = id
	}
	return &EngineError{
		Code:     ErrCodeIntegrity,
		Message:  fmt.Sprintf("filing matches %d entities on %s", len(entityIDs), field),
		Registry: registryID,
		Key:      key,
		Details:  details,
	}
}

// NewDuplicateKeyError reports an incoming record whose unique key already
// identifies more than one stored document.
func NewDuplicateKeyError(registryID, field, key string, count int) *IntegrityError {
	return &EngineError{
		Code:     ErrCodeIntegrity,
		Message:  fmt.Sprintf("%d stored records share %s", count, field),
		Registry: registryID,
		Key:      key,
		Details: map[string]string{
			"field": field,
			"count": fmt.Sprintf("%d", count),
		},
	}
}

// NewDataQualityError wraps a field whose format hint failed.
func NewDataQualityError(registryID, field, reason string) *EngineError {
	return &EngineError{
		Code:     ErrCodeDataQuality,
		Message:  fmt.Sprintf("%s kept unparsed: %s", field, reason),
		Registry: registryID,
		Details: map[string]string{
			"field": field,
		},
	}
}
