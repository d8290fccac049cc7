package amqp

import (
	"errors"
	"testing"
	"time"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

func TestDecodeJob(t *testing.T) {
	body := []byte(`{
		"submission_id": "01234567-89ab-cdef-0123-456789abcdef",
		"problem_id": "sum",
		"source_code": "print(1)",
		"test_cases": [
			{"id": "1", "input": "", "expected_output": "1", "is_public": true, "time_limit_seconds": 0.5}
		],
		"limits": {"default_time_limit_seconds": 2, "default_memory_limit_mb": 128},
		"fail_fast": false
	}`)

	job, err := decodeJob(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.SubmissionID.String() != "01234567-89ab-cdef-0123-456789abcdef" {
		t.Errorf("submission id mismatch: %s", job.SubmissionID)
	}
	if len(job.TestCases) != 1 || !job.TestCases[0].IsPublic || job.TestCases[0].TimeLimitSeconds != 0.5 {
		t.Errorf("unexpected test cases %+v", job.TestCases)
	}
	if job.Limits.DefaultMemoryLimitMB != 128 {
		t.Errorf("unexpected limits %+v", job.Limits)
	}
	if job.Options(domain.DefaultOptions()).FailFast {
		t.Error("expected fail_fast=false to be honoured")
	}
}

func TestDecodeJob_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing id", `{"test_cases": [{"id": "1"}]}`},
		{"no cases", `{"submission_id": "01234567-89ab-cdef-0123-456789abcdef"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeJob([]byte(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := decodeJob([]byte(`{"submission_id": "01234567-89ab-cdef-0123-456789abcdef", "test_cases": []}`))
	if !errors.Is(err, domain.ErrNoTestCases) {
		t.Errorf("expected ErrNoTestCases, got %v", err)
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := reconnectDelay(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
