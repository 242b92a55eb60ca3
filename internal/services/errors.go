package services

import "fmt"

// NotFoundError is returned when a source or record does not exist
type NotFoundError struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.ID)
}

// BadRequestError is returned for an invalid payload
type BadRequestError struct {
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

func (e *BadRequestError) Error() string {
	if e.Details != nil {
		return e.Message + ": " + *e.Details
	}
	return e.Message
}

// ConflictError is returned when a source already exists
type ConflictError struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.ID)
}

// UnauthorizedError is returned for failed logins
type UnauthorizedError struct {
	Message string `json:"message"`
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// UnavailableError is returned when a dependency is not ready
type UnavailableError struct {
	Message string            `json:"message"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (e *UnavailableError) Error() string {
	return e.Message
}

func badRequest(msg string, err error) *BadRequestError {
	if err == nil {
		return &BadRequestError{Message: msg}
	}
	details := err.Error()
	return &BadRequestError{Message: msg, Details: &details}
}
