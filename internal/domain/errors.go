package domain

import (
	"context"
	"errors"
)

var (
	// ErrParse is wrapped by parser errors; retrying will not fix a markup mismatch.
	ErrParse = errors.New("parse error")

	// ErrPersistence is wrapped by sink write failures.
	ErrPersistence = errors.New("persistence error")
)

type FailureCategory string

const (
	CategoryTransient   FailureCategory = "transient_network"
	CategoryPermanent   FailureCategory = "permanent_fetch"
	CategoryParse       FailureCategory = "parse"
	CategoryPersistence FailureCategory = "persistence"
	CategoryInterrupted FailureCategory = "interrupted"
	CategoryInternal    FailureCategory = "internal"
)

// transient is implemented by fetch errors that know whether they were retryable.
type transient interface {
	Transient() bool
}

// Classify maps a unit error to its failure category.
func Classify(err error) FailureCategory {
	var t transient
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return CategoryInterrupted
	case errors.Is(err, ErrParse):
		return CategoryParse
	case errors.Is(err, ErrPersistence):
		return CategoryPersistence
	case errors.As(err, &t):
		if t.Transient() {
			return CategoryTransient
		}
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}
