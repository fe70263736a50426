package engine

import "fmt"

// ValidationError reports malformed input: names, time shapes, dates,
// password shape, unknown registry references.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports an overlapping reservation. BlockedBy carries the
// requester of the first blocking row so callers can say who holds the slot.
type ConflictError struct {
	Equipment string
	Date      string
	BlockedBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already reserved by %s on %s", e.Equipment, e.BlockedBy, e.Date)
}

// UnauthorizedError reports a password mismatch on an edit or delete.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// DuplicateNameError reports a rename or registry add whose target name is
// already taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q already exists", e.Name)
}

// StoreError wraps an underlying table store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
