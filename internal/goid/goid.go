// Package goid reads the id of the calling goroutine. It is only used for
// identity checks (control goroutine, per-goroutine random streams), never
// for scheduling decisions.
package goid

import "github.com/joeycumines/goroutineid"

// Current returns the id of the calling goroutine, or 0 if it could not be
// read.
func Current() uint64 {
	id := goroutineid.Fast()
	if id < 0 {
		id = goroutineid.Slow(make([]byte, 64))
	}
	if id < 0 {
		return 0
	}
	return uint64(id)
}
