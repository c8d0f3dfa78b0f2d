package errors

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHint(err, "try this fix")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WrapStore(nil, "insert"))
	assert.Nil(t, WrapSubmission(nil, "submit"))
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		msg   string
	}{
		{
			name:  "validation",
			err:   NewValidationError("itemId is required"),
			check: IsValidationError,
			msg:   "itemId is required",
		},
		{
			name:  "not found names the entity",
			err:   NewNotFoundError("job configuration %s", "abc"),
			check: IsNotFoundError,
			msg:   "job configuration abc not found",
		},
		{
			name:  "duplication",
			err:   NewDuplicationError("draft name %q already used", "nightly"),
			check: IsDuplicationError,
			msg:   `draft name "nightly" already used`,
		},
		{
			name:  "malformed version",
			err:   NewMalformedVersionError("v3"),
			check: IsMalformedVersionError,
			msg:   `"v3": malformed version label`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.msg, tt.err.Error())

			// kinds survive further wrapping
			assert.True(t, tt.check(Wrap(tt.err, "outer")))
		})
	}
}

func TestKindsAreDistinct(t *testing.T) {
	err := NewValidationError("bad")
	assert.False(t, IsNotFoundError(err))
	assert.False(t, IsDuplicationError(err))
	assert.False(t, IsStoreError(err))
	assert.False(t, IsSubmissionError(err))
}

func TestWrapStore(t *testing.T) {
	err := WrapStore(sql.ErrConnDone, "insert job configuration")

	assert.True(t, IsStoreError(err))
	assert.True(t, Is(err, sql.ErrConnDone), "driver cause stays inspectable")
	assert.False(t, IsSubmissionError(err))
}

func TestWrapSubmission(t *testing.T) {
	err := WrapSubmission(New("connection refused"), "submit bundle")

	assert.True(t, IsSubmissionError(err))
	assert.False(t, IsStoreError(err))
	assert.Contains(t, err.Error(), "submit bundle")
}

func ExampleNewNotFoundError() {
	err := NewNotFoundError("lineage %s", "p-1")
	fmt.Println(err)
	// Output: lineage p-1 not found
}
