package store

import "errors"

var (
	// ErrJobNotFound indicates the job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotOpen indicates the job no longer accepts batches.
	ErrJobNotOpen = errors.New("job not open")

	// ErrInvalidQuery indicates a where or order by clause the instance cannot evaluate.
	ErrInvalidQuery = errors.New("invalid query")
)

// Row error codes reported by the bundled instances.
const (
	CodeInvalidField     = "INVALID_FIELD"
	CodeRequiredField    = "REQUIRED_FIELD_MISSING"
	CodeInvalidReference = "INVALID_CROSS_REFERENCE_KEY"
	CodeInvalidID        = "INVALID_ID_FIELD"
	CodeDuplicateValue   = "DUPLICATE_VALUE"
	CodeRejected         = "CANNOT_INSERT_UPDATE_ACTIVATE_ENTITY"
)
