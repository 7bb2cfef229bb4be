// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID   = "request_id"
	FieldOperationID = "operation_id"
	FieldResource    = "resource"
	FieldEntityID    = "entity_id"
	FieldParent      = "parent"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldLabel     = "label"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldPhase    = "phase"

	// Outcome fields
	FieldOutcome  = "outcome"
	FieldReason   = "reason"
	FieldDuration = "duration_ms"
)
