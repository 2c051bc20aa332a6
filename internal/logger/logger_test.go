package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleLogger_FormatsFields(t *testing.T) {
	var out, errOut bytes.Buffer
	l := newSimpleLogger("hold", &out, &errOut, false)

	l.Info("deal held", "deal_id", "abc", "reasons", 2)
	assert.Contains(t, out.String(), "[hold] deal held deal_id=abc reasons=2")

	l.Error("send failed", errors.New("timeout"), "recipient", "a@b.c")
	assert.Contains(t, errOut.String(), "send failed: timeout recipient=a@b.c")
}

func TestSimpleLogger_DebugGated(t *testing.T) {
	var out bytes.Buffer
	l := newSimpleLogger("", &out, &out, false)
	l.Debug("hidden")
	assert.Empty(t, out.String())

	l = newSimpleLogger("", &out, &out, true)
	l.Debug("shown", "odd")
	assert.Contains(t, out.String(), "shown odd")
}
