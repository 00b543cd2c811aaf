// Package gwvar publishes process state through expvar, it is served on /debug/vars of the pprof server
package gwvar

import "expvar"

// Bool is a bool published as an expvar int
type Bool struct {
	val *expvar.Int
}

// NewBool publishes a bool named name
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

// Updated by the main loop on every tick
var (
	IsRunning        = NewBool("mercury.IsRunning")
	NumChannels      = expvar.NewInt("mercury.NumChannels")
	NumEntities      = expvar.NewInt("mercury.NumEntities")
	PendingCallbacks = expvar.NewInt("mercury.PendingCallbacks")
)
