package rate

import "errors"

// ErrRedisUnavailable wraps transient counter-store failures.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
