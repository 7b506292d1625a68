package service

import (
	"errors"
	"fmt"
)

// Service errors.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrCapacityExceeded   = errors.New("group is full")
	ErrGroupNotFound      = errors.New("group not found")
	ErrNotMember          = errors.New("not a member of this group")
	ErrForbidden          = errors.New("operation not allowed")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrSplitExists        = errors.New("split already started")
	ErrSplitNotStarted    = errors.New("split not started")
	ErrTooFewMembers      = errors.New("group needs at least two riders to split")
	ErrGroupClosed        = errors.New("group is settling its fare and takes no new riders")
	ErrMembersChanged     = errors.New("group members changed while starting the split")
)

// RepositoryError wraps a backend failure that the caller may retry.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func repoErr(op string, err error) error {
	return &RepositoryError{Op: op, Err: err}
}

// invalid wraps ErrInvalidInput with a detail message.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
