package security

import "runtime"

// Wipe zeroes a buffer holding secret material. noinline keeps the compiler
// from eliding the stores as dead writes.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
