package commands

import "errors"

// reportedError marks an error whose failure summary was already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already rendered for the user.
func IsReported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}
