package signaling

import "errors"

var ErrHubStopped = errors.New("hub stopped")
