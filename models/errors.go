package models

import "errors"

// Sentinel errors shared by the store and the domain services.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrEmailTaken          = errors.New("email already registered")
	ErrPhoneTaken          = errors.New("phone already registered")
	ErrSlugTaken           = errors.New("slug already in use")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrPlanExpired         = errors.New("plan expired")
	ErrDuplicateRequest    = errors.New("an open interview request already exists")
	ErrForbidden           = errors.New("forbidden")
)
