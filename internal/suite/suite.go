// Package suite loads local test suites for the judge CLI.
package suite

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pelletier/go-toml/v2"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

// maxSuiteBytes caps a decompressed suite.
const maxSuiteBytes = 256 << 20

// Suite is a problem's test cases with their default limits.
//
//	time_limit_seconds = 2
//	memory_limit_mb = 256
//	fail_fast = false
//
//	[[test_cases]]
//	id = "1"
//	input = "2\n"
//	expected_output = "4"
//	is_public = true
type Suite struct {
	domain.Limits
	FailFast  *bool             `toml:"fail_fast"`
	TestCases []domain.TestCase `toml:"test_cases"`
}

// Load reads a TOML suite. Files ending in .zst are zstd-decompressed first.
func Load(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suite: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".zst" {
		d, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer d.Close()
		r = d
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSuiteBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}
	if len(data) > maxSuiteBytes {
		return nil, fmt.Errorf("suite %s exceeds %d bytes", path, maxSuiteBytes)
	}
	return Parse(data)
}

// Parse decodes a TOML suite. Cases without an id are numbered from 1.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse suite: %w", err)
	}
	if len(s.TestCases) == 0 {
		return nil, domain.ErrNoTestCases
	}
	for i := range s.TestCases {
		if s.TestCases[i].ID == "" {
			s.TestCases[i].ID = fmt.Sprint(i + 1)
		}
		if s.TestCases[i].Order == 0 {
			s.TestCases[i].Order = i
		}
	}
	return &s, nil
}

// Options resolves the suite's options over defaults.
func (s *Suite) Options(defaults domain.Options) domain.Options {
	if s.FailFast != nil {
		defaults.FailFast = *s.FailFast
	}
	return defaults
}
