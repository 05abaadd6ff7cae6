package hub

import (
	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/sessions"
)

// privilegedCommands are refused to connections below the owner level.
var privilegedCommands = map[string]struct{}{
	EventSystemMessage:    {},
	EventChatStop:         {},
	EventGetOutTrash:      {},
	EventAllConnectionOut: {},
	EventFreeze:           {},
	EventClean:            {},
	EventNotice:           {},
	EventVote:             {},
	EventBannerShow:       {},
	EventBannerHide:       {},
}

func Privileged(event string) bool {
	_, ok := privilegedCommands[event]
	return ok
}

func (h *Hub) authorize(c *client, event string) error {
	if !Privileged(event) || c.level >= sessions.LevelOwner {
		return nil
	}
	securityViolations.WithLabelValues(event).Inc()
	h.auditf(c, "security", "unauthorized %s", event)
	return errors.Wrapf(ErrUnauthorized, "event %q", event)
}
