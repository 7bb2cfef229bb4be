// SPDX-License-Identifier: MIT

// Package store holds the normalized, id-keyed view of course content
// entities. It is the single source of truth for sibling ordering.
package store

// Kind identifies the entity type.
type Kind string

const (
	KindCourse  Kind = "course"
	KindChapter Kind = "chapter"
	KindVideo   Kind = "video"
)

// Status represents the lifecycle state of an entity's media.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// Entity is a normalized course-content record. Parent is the id of the
// enclosing sibling group ("" for top-level courses); Order is the
// position among siblings with the same Parent.
type Entity struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Parent string `json:"parent,omitempty"`
	Title  string `json:"title"`
	Order  int    `json:"order"`
	Status Status `json:"status"`
}
