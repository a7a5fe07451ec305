package lifecycle

import (
	"runtime"
	"sync/atomic"
)

const deadBit = int64(1) << 62

// Token is a liveness-checked reference to a controller's resources.
//
// Acquire succeeds only while the token is alive and pins it until Release.
// Kill marks it dead and waits for every in-flight holder to release, so
// after Kill returns nobody can touch the guarded resources anymore.
// Holders must only perform short, non-blocking work.
type Token struct {
	state atomic.Int64 // deadBit | refs
}

// Acquire pins the token. It returns false once the token is dead.
func (t *Token) Acquire() bool {
	for {
		s := t.state.Load()
		if s&deadBit != 0 {
			return false
		}
		if t.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

// Release unpins a successful Acquire.
func (t *Token) Release() {
	t.state.Add(-1)
}

// Alive reports whether the token has not been killed.
func (t *Token) Alive() bool {
	return t.state.Load()&deadBit == 0
}

// Kill marks the token dead and waits for in-flight holders.
// Calling Kill more than once is safe.
func (t *Token) Kill() {
	for {
		s := t.state.Load()
		if s&deadBit != 0 || t.state.CompareAndSwap(s, s|deadBit) {
			break
		}
	}
	for t.state.Load() != deadBit {
		runtime.Gosched()
	}
}
