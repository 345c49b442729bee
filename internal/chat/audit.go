package chat

import (
	"context"

	"github.com/youuungh/sns-chat-go/pkg/log"
)

// Audit actions for user-visible chat operations.
const (
	ActionConnect     = "chat.connect"
	ActionDisconnect  = "chat.disconnect"
	ActionSendMessage = "chat.send_message"
	ActionMarkAsRead  = "chat.mark_as_read"
	ActionLeaveRoom   = "chat.leave_room"
)

const fieldAction = "action"

func audit(ctx context.Context, action, roomID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Str(log.FieldRoomID, roomID).
		Msg(msg)
}
