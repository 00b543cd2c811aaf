package gwutils

import (
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
)

func TestRunPanicless(t *testing.T) {
	assert.T(t, RunPanicless(func() {
		panic(1)
	}))
	assert.T(t, RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}))
	assert.T(t, !RunPanicless(func() {}))
}

func TestRepeatUntilPanicless(t *testing.T) {
	n := 0
	RepeatUntilPanicless(func() {
		n++
		if n < 3 {
			panic(n)
		}
	})
	assert.Equal(t, 3, n)
}

func TestCatchPanic(t *testing.T) {
	assert.Equal(t, "boom", CatchPanic(func() { panic("boom") }))
	assert.Equal(t, nil, CatchPanic(func() {}))
}
