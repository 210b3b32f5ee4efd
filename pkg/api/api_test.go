package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		kind FailureKind
		code ErrorCode
	}{
		{KindUnauthorized, CodeUnauthorized},
		{KindClassification, CodeInvalidInstruction},
		{KindMissingArgument, CodeMissingArgument},
		{KindUnavailable, CodeActionFailed},
		{KindNotFound, CodeActionFailed},
		{KindInteraction, CodeActionFailed},
		{KindUnsupported, CodeActionFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			info := Describe(NewFailure(tt.kind, "msg", "hint"))
			assert.Equal(t, ErrorInfo{Code: tt.code, Message: "msg", Hint: "hint"}, info)
		})
	}
}

func TestDescribe_Internal(t *testing.T) {
	info := Describe(errors.New("nil pointer dereference"))
	assert.Equal(t, CodeInternalError, info.Code)
	assert.Equal(t, internalMessage, info.Message)
	assert.NotEmpty(t, info.Hint)

	info = Describe(NewFailure(FailureKind("weird"), "leak", "x"))
	assert.Equal(t, CodeInternalError, info.Code)
	assert.NotEqual(t, "leak", info.Message)
}

func TestFailure_WrappedChain(t *testing.T) {
	cause := errors.New("timeout")
	f := NewFailure(KindInteraction, "menu", "").Wrap(cause)
	err := fmt.Errorf("open project: %w", f)

	got, ok := AsFailure(err)
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, DefaultHint, got.Hint)
	assert.True(t, got.Recoverable())
	assert.Equal(t, CodeActionFailed, Describe(err).Code)

	assert.False(t, NewFailure(KindNotFound, "x", "y").Recoverable())
}

func TestMissingParam(t *testing.T) {
	name, missing := ActionOpenProject.MissingParam(nil)
	assert.True(t, missing)
	assert.Equal(t, ParamPath, name)

	_, missing = ActionTakeScreenshot.MissingParam(map[string]string{ParamOut: ""})
	assert.True(t, missing, "empty values count as missing")

	_, missing = ActionPackEcmp.MissingParam(map[string]string{ParamOut: "a.ecmp"})
	assert.False(t, missing)

	_, missing = ActionBuildExob.MissingParam(nil)
	assert.False(t, missing)
}

func TestActions(t *testing.T) {
	for _, a := range Actions() {
		assert.True(t, a.Known())
	}
	assert.False(t, Action("format_disk").Known())
	assert.Equal(t, []string{ParamOut}, ActionPackEcmp.RequiredParams())
}

func TestResolvedBuildDate(t *testing.T) {
	assert.Len(t, ResolvedBuildDate(), len("2006-01-02"))
}
