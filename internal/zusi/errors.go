package zusi

import (
	"errors"
	"fmt"
)

// Reasons a service file is skipped.
var (
	ErrMalformedXML       = errors.New("malformed xml")
	ErrMissingTrainFile   = errors.New("missing train file")
	ErrNoTimetable        = errors.New("no Buchfahrplan element")
	ErrNoTrain            = errors.New("no Zug element")
	ErrTooFewEntries      = errors.New("fewer than two timetable entries")
	ErrNoValidRoute       = errors.New("fewer than two valid entries")
	ErrNoRunningDistance  = errors.New("no FplZeile rows")
	ErrInvalidNumber      = errors.New("invalid number")
	ErrInvalidTime        = errors.New("invalid time")
	ErrNegativeDuration   = errors.New("end departs before start")
	ErrUnrecognizedFormat = errors.New("unrecognized file extension")
)

var reasonLabels = []struct {
	err   error
	label string
}{
	{ErrMalformedXML, "malformed_xml"},
	{ErrMissingTrainFile, "missing_train_file"},
	{ErrNoTimetable, "no_timetable"},
	{ErrNoTrain, "no_train"},
	{ErrTooFewEntries, "too_few_entries"},
	{ErrNoValidRoute, "no_valid_route"},
	{ErrNoRunningDistance, "no_running_distance"},
	{ErrInvalidNumber, "invalid_number"},
	{ErrInvalidTime, "invalid_time"},
	{ErrNegativeDuration, "negative_duration"},
	{ErrUnrecognizedFormat, "unrecognized_format"},
}

// Reason returns a short, stable label for a skip error, suitable for
// summaries and metric labels.
func Reason(err error) string {
	var excluded *ExcludedError
	if errors.As(err, &excluded) {
		return "excluded"
	}
	for _, r := range reasonLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "read_error"
}

// ParseError reports a file that is not a valid service definition.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(path string, reason error, detail error) *ParseError {
	if detail == nil {
		return &ParseError{Path: path, Err: reason}
	}
	return &ParseError{Path: path, Err: fmt.Errorf("%w: %w", reason, detail)}
}

// ExcludedError reports a service filtered out by an exclusion keyword.
type ExcludedError struct {
	Path    string
	Keyword string
	Field   string // "path" or "timetable_group"
}

func (e *ExcludedError) Error() string {
	return fmt.Sprintf("excluded %s: %s contains %q", e.Path, e.Field, e.Keyword)
}
