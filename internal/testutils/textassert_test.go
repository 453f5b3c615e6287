//go:build test

package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextAsserter_DefaultOptions(t *testing.T) {
	opts := NewTextAsserter(t).GetOptions()

	assert.False(t, opts.IgnoreLeadingWhitespace, "IgnoreLeadingWhitespace MUST default to false")
	assert.False(t, opts.IgnoreTrailingWhitespace, "IgnoreTrailingWhitespace MUST default to false")
	assert.False(t, opts.IgnoreEmptyLines, "IgnoreEmptyLines MUST default to false")
	assert.False(t, opts.TrimSpace, "TrimSpace MUST default to false")
	assert.False(t, opts.EnableColors, "EnableColors MUST default to false")
}

func TestTextAsserter_Compare(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		fails    bool
	}{
		{name: "identical", actual: "a\nb", expected: "a\nb"},
		{name: "different", actual: "a\nb", expected: "a\nc", fails: true},
		{name: "leading whitespace significant", actual: "  a", expected: "a", fails: true},
		{name: "leading whitespace ignored", opts: []TextOption{WithIgnoreLeadingWhitespace(true)}, actual: "  a", expected: "a"},
		{name: "trailing whitespace ignored", opts: []TextOption{WithIgnoreTrailingWhitespace(true)}, actual: "a\t ", expected: "a"},
		{name: "empty lines ignored", opts: []TextOption{WithIgnoreEmptyLines(true)}, actual: "a\n\n\nb", expected: "a\nb"},
		{name: "trim space", opts: []TextOption{WithTrimSpace(true)}, actual: "\n a \n", expected: "a"},
		{name: "colored diff still fails", opts: []TextOption{WithEnableColors(true)}, actual: "a b", expected: "a c", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewTextAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.fails {
				assert.Len(t, rec.failures, 1, "assertion MUST fail once")
			} else {
				assert.Empty(t, rec.failures, "assertion MUST pass")
			}
		})
	}
}

func TestTextAsserter_DiffIsUnified(t *testing.T) {
	diff := NewTextAsserter(t).diff("line1\nactual\n", "line1\nexpected\n")

	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "+++ actual")
	assert.Contains(t, diff, "-expected")
	assert.Contains(t, diff, "+actual")
}

func TestTextAsserter_AssertContains(t *testing.T) {
	output := "Connected to AA:BB\nService 180f\n  2a19 read,notify\n"

	rec := &recordingT{}
	NewTextAsserter(rec).AssertContains(output, "Connected", "180f", "2a19")
	assert.Empty(t, rec.failures, "lines present in order MUST pass")

	rec = &recordingT{}
	NewTextAsserter(rec).AssertContains(output, "2a19", "Connected")
	assert.Len(t, rec.failures, 1, "lines out of order MUST fail")
}
