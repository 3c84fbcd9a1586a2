package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	base := New("provider refused")
	wrapped := Wrapf(base, "fetch request %d", 7)

	assert.Contains(t, wrapped.Error(), "fetch request 7")
	assert.Contains(t, wrapped.Error(), "provider refused")
	assert.True(t, Is(wrapped, base))
}

func TestSentinelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found marked", NewNotFoundError("document %s", "file:///a.go"), IsNotFoundError, true},
		{"not found wrapped", WrapNotFound(New("missing"), "lookup"), IsNotFoundError, true},
		{"invalid request marked", NewInvalidRequestError("bad position %d", -1), IsInvalidRequestError, true},
		{"invalid request wrapped", WrapInvalidRequest(New("no uri"), "decode"), IsInvalidRequestError, true},
		{"timeout wrapped", Wrap(ErrTimeout, "provider"), IsTimeoutError, true},
		{"unavailable wrapped", Wrap(ErrServiceUnavailable, "anthropic"), IsServiceUnavailableError, true},
		{"nil is never a sentinel", nil, IsNotFoundError, false},
		{"plain error is not invalid", New("x"), IsInvalidRequestError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestMarkedErrorsKeepOriginalMessage(t *testing.T) {
	err := WrapNotFound(New("no session for uri"), "accept")
	assert.Equal(t, "accept: no session for uri", err.Error())
}

func TestHintsAndDetailsSurviveWrapping(t *testing.T) {
	err := WithHint(ErrServiceUnavailable, "set GHOSTWRITE_OPENROUTER_API_KEY")
	err = WithDetail(err, "provider=openrouter")
	err = Wrap(err, "build client")

	require.Contains(t, GetAllHints(err), "set GHOSTWRITE_OPENROUTER_API_KEY")
	require.Contains(t, GetAllDetails(err), "provider=openrouter")
	assert.True(t, Is(err, ErrServiceUnavailable))
}

func TestStackTrace(t *testing.T) {
	detailed := fmt.Sprintf("%+v", New("with stack"))
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func ExampleWrap() {
	err := Wrap(ErrStale, "request 3")
	fmt.Println(err)
	// Output: request 3: stale response
}
