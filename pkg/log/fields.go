package log

const (
	// Connection
	FieldConnState = "conn_state"
	FieldAttempt   = "attempt"
	FieldSessionID = "session_id"

	// Chat
	FieldRoomID    = "room_id"
	FieldMessageID = "message_id"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
