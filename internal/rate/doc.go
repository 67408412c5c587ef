// Package rate implements the fixed-window rate limiter used by the public
// API surface: one Redis counter per key, INCR plus a first-hit EXPIRE. The
// window is fixed, not sliding: the first request after the key lapses
// restarts the count at 1. A small in-process fallback limiter covers the
// fail-open path when the counter store is unreachable.
package rate
