package projects

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrNoChange     = errors.New("no change")
	ErrWrongOwner   = errors.New("registered to a different project")
	ErrNotRoot      = errors.New("not a namespace root")
)

// NamespaceError describes a rejected namespace operation. Owner is set for
// ErrConflict and ErrWrongOwner, Root for ErrNotRoot.
type NamespaceError struct {
	Namespace string
	Owner     string
	Root      string
	Err       error
}

func (e *NamespaceError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotRoot):
		return fmt.Sprintf("namespace %s: %v (root is %s)", e.Namespace, e.Err, e.Root)
	case e.Owner != "":
		return fmt.Sprintf("namespace %s: %v (owner %s)", e.Namespace, e.Err, e.Owner)
	default:
		return fmt.Sprintf("namespace %s: %v", e.Namespace, e.Err)
	}
}

func (e *NamespaceError) Unwrap() error { return e.Err }

func invalid(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidInput, what, err)
}

func notFound(name string) error {
	return fmt.Errorf("project %s: %w", name, ErrNotFound)
}
