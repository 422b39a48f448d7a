package log

// Canonical field name constants for structured logging, kept in one place
// so call sites agree on spelling.
const (
	FieldComponent    = "component"
	FieldEvent        = "event"
	FieldRunID        = "run_id"
	FieldSerial       = "serial"
	FieldRawSessionID = "raw_session_id"
	FieldKind         = "kind"
)
