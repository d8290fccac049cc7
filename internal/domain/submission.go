package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus represents the lifecycle state of a judged submission.
type SubmissionStatus string

const (
	SubmissionQueued   SubmissionStatus = "QUEUED"
	SubmissionJudging  SubmissionStatus = "JUDGING"
	SubmissionFinished SubmissionStatus = "FINISHED"
	SubmissionFailed   SubmissionStatus = "FAILED"
)

// IsTerminal returns true if the status represents a final state.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case SubmissionFinished, SubmissionFailed:
		return true
	}
	return false
}

// JudgeJob is one submission to judge, as received from the queue.
type JudgeJob struct {
	SubmissionID uuid.UUID  `json:"submission_id"`
	ProblemID    string     `json:"problem_id"`
	StudentID    string     `json:"student_id"`
	SourceCode   string     `json:"source_code"`
	TestCases    []TestCase `json:"test_cases"`
	Limits       Limits     `json:"limits"`
	FailFast     *bool      `json:"fail_fast,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Options resolves the job's orchestration options over defaults.
func (j *JudgeJob) Options(defaults Options) Options {
	opts := defaults
	if j.FailFast != nil {
		opts.FailFast = *j.FailFast
	}
	return opts
}

// Submission is the persisted state of one submission.
type Submission struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	ProblemID    string           `json:"problem_id"`
	StudentID    string           `json:"student_id"`
	Status       SubmissionStatus `json:"status"`
	Verdict      *JudgeVerdict    `json:"verdict,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SubmitRequest is the payload for queueing a submission.
type SubmitRequest struct {
	ProblemID  string     `json:"problem_id"`
	StudentID  string     `json:"student_id"`
	SourceCode string     `json:"source_code"`
	TestCases  []TestCase `json:"test_cases"`
	Limits     Limits     `json:"limits"`
	FailFast   *bool      `json:"fail_fast,omitempty"`
}

// SubmitResponse is returned once a submission is queued.
type SubmitResponse struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Status       SubmissionStatus `json:"status"`
}

// JobMessage wraps a JudgeJob with broker acknowledgement callbacks.
type JobMessage struct {
	Job  *JudgeJob
	Ack  func() error
	Nack func(requeue bool) error
}
