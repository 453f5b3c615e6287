//go:build test

package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures assertion failures instead of failing the test
type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).GetOptions()

	assert.True(t, opts.IgnoreExtraKeys, "IgnoreExtraKeys MUST default to true")
	assert.True(t, opts.AllowPresencePlaceholder, "AllowPresencePlaceholder MUST default to true")
	assert.False(t, opts.IgnoreArrayOrder, "IgnoreArrayOrder MUST default to false")
	assert.Empty(t, opts.IgnoredFields, "IgnoredFields MUST default to empty")
}

func TestJSONAsserter_Compare(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		fails    bool
	}{
		{name: "equal objects", actual: `{"uuid":"180f"}`, expected: `{"uuid":"180f"}`},
		{name: "different values", actual: `{"uuid":"180f"}`, expected: `{"uuid":"180a"}`, fails: true},
		{name: "extra keys ignored", actual: `{"uuid":"180f","name":"Battery"}`, expected: `{"uuid":"180f"}`},
		{name: "extra keys reported", opts: []JSONOption{WithIgnoreExtraKeys(false)},
			actual: `{"uuid":"180f","name":"Battery"}`, expected: `{"uuid":"180f"}`, fails: true},
		{name: "presence placeholder", actual: `{"at":"2025-01-01T00:00:00Z"}`, expected: `{"at":"<<PRESENCE>>"}`},
		{name: "presence placeholder requires key", actual: `{}`, expected: `{"at":"<<PRESENCE>>"}`, fails: true},
		{name: "ignored fields", opts: []JSONOption{WithIgnoredFields("at")},
			actual: `{"kind":"connect","at":1}`, expected: `{"kind":"connect","at":2}`},
		{name: "root arrays", actual: `[1,2]`, expected: `[1,2]`},
		{name: "array order matters", actual: `[1,2]`, expected: `[2,1]`, fails: true},
		{name: "array order ignored", opts: []JSONOption{WithIgnoreArrayOrder(true)}, actual: `[1,2]`, expected: `[2,1]`},
		{name: "invalid actual", actual: `{`, expected: `{}`, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.fails {
				assert.NotEmpty(t, rec.failures, "assertion MUST fail")
			} else {
				assert.Empty(t, rec.failures, "assertion MUST pass")
			}
		})
	}
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	rec := &recordingT{}
	NewJSONAsserter(rec).AssertValue(map[string]any{"level": 50, "unit": "%"}, `{"level":50}`)
	assert.Empty(t, rec.failures, "marshalled values MUST compare like JSON text")
}
