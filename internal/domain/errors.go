package domain

import "errors"

var (
	// ErrNoTestCases is returned when a judge call carries no test cases.
	ErrNoTestCases = errors.New("judge: no test cases supplied")

	// ErrInvalidLimits is returned when the default limits are not positive.
	ErrInvalidLimits = errors.New("judge: time and memory limits must be positive")

	// ErrNoInterpreter is returned when none of the configured interpreter
	// candidates could be launched for static analysis.
	ErrNoInterpreter = errors.New("analyzer: no usable interpreter found")

	// ErrSubmissionNotFound is returned when a submission row does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrEmptySourceCode is returned when the source code is blank.
	ErrEmptySourceCode = errors.New("source code cannot be empty")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code exceeds maximum size")

	// ErrPublishFailed is returned when a submission could not be queued.
	ErrPublishFailed = errors.New("failed to queue submission")
)
