package facestore

import "github.com/tphakala/faceattend/internal/errors"

var (
	// ErrDuplicateIdentity is returned when adding an id that already exists
	// without overwrite.
	ErrDuplicateIdentity = errors.NewStd("identity already exists")

	// ErrNotFound is returned for operations on an unknown id.
	ErrNotFound = errors.NewStd("identity not found")
)

func duplicateError(id string) error {
	return errors.New(ErrDuplicateIdentity).
		Component("facestore").
		Category(errors.CategoryConflict).
		Context("employee_id", id).
		Build()
}

func notFoundError(id string) error {
	return errors.New(ErrNotFound).
		Component("facestore").
		Category(errors.CategoryNotFound).
		Context("employee_id", id).
		Build()
}
