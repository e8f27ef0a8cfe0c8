// File: internal/faults/faults_test.go
package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Missing("session.load", "session", "run `regress auth` first")
	assert.Equal(t, "session.load: session not found (run `regress auth` first)", err.Error())

	wrapped := External("generate", errors.New("quota exceeded"))
	assert.Equal(t, "generate: external dependency failed: quota exceeded", wrapped.Error())
}

func TestIsWalksWrappedChain(t *testing.T) {
	base := Timeout("poll", "condition not met", "")
	err := fmt.Errorf("auth flow: %w", base)

	assert.True(t, Is(err, KindTimeout))
	assert.False(t, Is(err, KindConfig))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.False(t, Is(errors.New("plain"), KindTimeout))
}

func TestIsFindsInnerKind(t *testing.T) {
	inner := Missing("csv", "cases.csv", "")
	outer := &Error{Kind: KindExternal, Op: "generate", Msg: "batch failed", Err: inner}

	assert.True(t, Is(outer, KindExternal))
	assert.True(t, Is(outer, KindMissing))
}

func TestRemedyOf(t *testing.T) {
	inner := Missing("report", "report", "run `regress run` first")
	outer := fmt.Errorf("open: %w", &Error{Kind: KindMissing, Op: "report", Msg: "x", Err: inner})
	assert.Equal(t, "run `regress run` first", RemedyOf(outer))
	assert.Equal(t, "", RemedyOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "configuration", KindConfig.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
