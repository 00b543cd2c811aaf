package gwutils

import (
	"reflect"
	"runtime"

	"github.com/xiaonanln/gomercury/engine/gwlog"
)

func funcName(f func()) string {
	if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
		return fn.Name()
	}
	return "?"
}

// RunPanicless calls f, a panic is logged with the stack and reported instead of propagated
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		if err := recover(); err != nil {
			gwlog.TraceError("%s panic: %v", funcName(f), err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless restarts f after each panic, until it returns normally
func RepeatUntilPanicless(f func()) {
	for restarts := 0; RunPanicless(f); restarts++ {
		gwlog.Warnf("%s restarted after panic (%d)", funcName(f), restarts+1)
	}
}

// CatchPanic runs f and returns the recovered panic value, or nil
func CatchPanic(f func()) (err interface{}) {
	defer func() {
		err = recover()
	}()
	f()
	return
}
