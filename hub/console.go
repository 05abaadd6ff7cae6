package hub

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/sessions"
	"go.uber.org/zap"
)

// auditf records an operator-relevant action and mirrors it to every admin
// console in the cluster.
func (h *Hub) auditf(c *client, action, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	h.audit.WithFields(logrus.Fields{
		"action":         action,
		"remote_address": c.conn.RemoteAddress(),
		"nickname":       c.nickname,
		"user_id":        c.userID,
	}).Info(message)
	h.consoleLog(fmt.Sprintf("[%s]%s %s", action, describe(c), message))
}

func (h *Hub) consoleLog(line string) {
	h.emitLocal("adm-console", consoleLine{Type: "log", Data: line, PID: h.id}, inBucket(sessions.BucketConsole))
	h.publish(events.ConsoleLog{Line: line})
}

// toConsoles emits event to every console session in the cluster.
func (h *Hub) toConsoles(event string, payload interface{}) {
	body, err := marshalPayload(payload)
	if err != nil {
		h.logger.Error("failed to encode console payload", zap.String("event", event), zap.Error(err))
		return
	}
	h.emitLocal(event, rawPayload(body), inBucket(sessions.BucketConsole))
	h.publish(events.ConsoleEmit{Event: event, Body: body})
}

// toRoom emits event to every session in the cluster.
func (h *Hub) toRoom(event string, payload interface{}) {
	body, err := marshalPayload(payload)
	if err != nil {
		h.logger.Error("failed to encode room payload", zap.String("event", event), zap.Error(err))
		return
	}
	h.emitLocal(event, rawPayload(body), connected)
	h.publish(events.RoomBroadcast{Event: event, Body: body})
}
