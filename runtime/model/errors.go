package model

import "errors"

// ErrStreamingUnsupported is returned by Client.Stream implementations whose
// provider adapter has no streaming transport wired up.
var ErrStreamingUnsupported = errors.New("model: streaming is not supported by this provider")

// ErrRateLimited marks an error as a provider-side rate limit response, so
// retry middleware can select the rate-limit backoff schedule instead of the
// network one.
var ErrRateLimited = errors.New("model: provider rate limited the request")
