package rate

import "errors"

// ErrRedisUnavailable wraps any Redis transport failure.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
