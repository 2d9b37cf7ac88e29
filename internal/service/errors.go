package service

import "errors"

var (
	ErrNotFound        = errors.New("error not found")
	ErrValidation      = errors.New("error validation failed")
	ErrForbidden       = errors.New("error operation forbidden")
	ErrAlreadyExists   = errors.New("error already exists")
	ErrAINotConfigured = errors.New("error AI provider is not configured")
)
