package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Context fields, carried through the call chain with WithFields.
const (
	FieldRequestID    = "request_id"
	FieldComponent    = "component"
	FieldOperation    = "operation"
	FieldAnimalID     = "animal_id"
	FieldSearchStatus = "search_status"
	FieldImportRow    = "import_row"
)

// Entry-level fields used for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldErrorKind  = "error_kind"
)
