package pipeline

import (
	"errors"
	"fmt"

	"github.com/YDUTSEVOLDN/Subway/core/assembly"
	"github.com/YDUTSEVOLDN/Subway/core/inference"
	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// UpstreamSourceError wraps any failure returned by the record source. The
// pipeline never substitutes synthetic data for a failed fetch.
type UpstreamSourceError struct {
	Err error
}

func (e *UpstreamSourceError) Error() string { return "record source: " + e.Err.Error() }

func (e *UpstreamSourceError) Unwrap() error { return e.Err }

// InvalidWindowError reports a request whose date window cannot be served.
type InvalidWindowError struct {
	Start, End model.Date
	Reason     string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window %s..%s: %s", e.Start, e.End, e.Reason)
}

// IsFatal reports whether err signals contract drift or an internal bug
// rather than a transient upstream problem. Fatal errors are never retried.
func IsFatal(err error) bool {
	var (
		cfg   *model.ConfigurationError
		dup   *model.DuplicateKeyError
		shape *inference.ShapeMismatchError
		count *assembly.CountMismatchError
	)
	return errors.As(err, &cfg) || errors.As(err, &dup) ||
		errors.As(err, &shape) || errors.As(err, &count)
}

// IsUpstream reports whether err came from the record source.
func IsUpstream(err error) bool {
	var up *UpstreamSourceError
	return errors.As(err, &up)
}
