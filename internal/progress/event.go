// SPDX-License-Identifier: MIT

// Package progress provides the in-process fan-out of upload progress
// events pushed by the external transport.
package progress

import "time"

// Topics the core publishes and consumes.
const (
	TopicProgress = "progress"
	TopicComplete = "complete"
)

// Event is one push-transport message. PercentComplete is monotone per
// operation from the producer's perspective; consumers enforce their
// own monotonicity guard because the transport may reorder.
type Event struct {
	OperationID     string    `json:"operationId"`
	Resource        string    `json:"resourceKey"`
	PercentComplete float64   `json:"percentComplete"`
	BytesLoaded     int64     `json:"bytesLoaded"`
	BytesTotal      int64     `json:"bytesTotal"`
	Timestamp       time.Time `json:"timestamp"`
}
