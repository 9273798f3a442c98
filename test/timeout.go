package test

import (
	"os"
	"runtime/pprof"
	"time"
)

const testTimeout = 15 * time.Second

// Timeout implements a test level timeout. If the calling test does not
// finish within the limit, a goroutine dump is written and the test
// binary panics.
func Timeout() func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(testTimeout):
			pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)

			panic("test timeout")
		case <-done:
		}
	}()

	return func() {
		close(done)
	}
}
