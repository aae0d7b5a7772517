package node

import (
	"errors"
	"fmt"
)

// ErrRole is returned when a node is constructed for an assignment of another role.
var ErrRole = errors.New("node: assignment has wrong role")

// FetchError describes an object that could not be read or decoded. It is
// logged and recorded in the selector report but never returned from Run.
type FetchError struct {
	Key  int64
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (key %d): %v", e.Name, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
