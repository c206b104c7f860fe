package readiness

import "errors"

// ErrUpstreamUnavailable marks a collaborator (dimension evaluator, options
// provider) that could not answer. Evaluation degrades instead of failing.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
