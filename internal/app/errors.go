package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"opskb/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func conflictError(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

func storageError(err error) *DomainError {
	return domainError(http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
}

// storeError maps persistence failures onto the domain taxonomy. Missing
// rows surface as NOT_FOUND, unique-index races as CONFLICT, everything
// else as STORAGE_ERROR.
func storeError(err error, missing string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFoundError(missing + " not found")
	case store.IsUniqueViolation(err):
		return conflictError("concurrent write detected, retry the operation")
	default:
		return storageError(err)
	}
}
