package hub

import (
	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/polls"
	"github.com/vx-labs/chat-hub/sessions"
	"go.uber.org/zap"
)

// chat relays a message to the other local sessions and echoes it back to
// the sender. Chat is not replicated to other processes.
func (h *Hub) chat(c *client, cmd chatMessage) error {
	if c.bucket == sessions.BucketUser {
		if h.moderation.Restricted(c.nickname) {
			c.logger.Debug("dropped message from restricted session")
			return nil
		}
		if h.Frozen() {
			return nil
		}
		message, flagged := h.filter.Apply(cmd.Message)
		if flagged {
			profanityHits.Inc()
			h.auditf(c, "profanity", "%s", cmd.Message)
		}
		chatMessages.WithLabelValues(string(c.bucket)).Inc()
		h.emitLocal("update", userChat{Nickname: c.nickname, UserID: c.userID, Message: message}, except(c.id))
		c.conn.Emit("update", roleChat{Type: "mychat", Nickname: c.nickname, Message: message})
		return nil
	}
	kind := "admin_chat"
	if c.bucket == sessions.BucketOwner {
		kind = "owner_chat"
	}
	chatMessages.WithLabelValues(string(c.bucket)).Inc()
	h.emitLocal("update", roleChat{Type: kind, Nickname: c.nickname, Message: cmd.Message}, except(c.id))
	c.conn.Emit("update", roleChat{Type: "mychat", Nickname: c.nickname, Message: cmd.Message})
	return nil
}

func (h *Hub) castVote(c *client, cmd voteCount) error {
	pollID, err := h.polls.Vote(c.userID, cmd.Value)
	switch errors.Cause(err) {
	case nil:
	case polls.ErrDuplicateVote:
		c.conn.Emit("vote-duplicated", messageDuplicate)
		return nil
	default:
		c.logger.Debug("ignored vote", zap.String("option", cmd.Value), zap.Error(err))
		return nil
	}
	h.publish(events.VoteCast{PollID: pollID, Voter: c.userID, Option: cmd.Value})
	c.conn.Emit("vote-completed", messageVoted)
	return nil
}

func (h *Hub) report(c *client, cmd report) error {
	h.toConsoles("report", reportNotice{
		Nickname: c.nickname,
		Target:   cmd.Nickname,
		Message:  cmd.Message,
		PID:      h.id,
	})
	h.auditf(c, "report", "%s: %s", cmd.Nickname, cmd.Message)
	return nil
}
