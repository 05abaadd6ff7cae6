package hub

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/notices"
)

func (h *Hub) systemMessage(c *client, cmd systemMessage) error {
	h.auditf(c, "system", "%s", cmd.Message)
	h.toRoom("system", cmd.Message)
	return nil
}

func (h *Hub) chatStop(c *client, cmd chatStop) error {
	entry, err := h.moderation.Mute(cmd.Nickname, cmd.Minutes)
	if err != nil {
		return err
	}
	h.publish(restrictionSet(entry))
	h.auditf(c, "stop", "%s (%d minutes)", cmd.Nickname, cmd.Minutes)
	h.toConsoles("update", trashUpdate{Type: "new-stop", TrashList: h.trashList(), PID: h.id})
	h.notifyRestriction(entry)
	if _, err := h.registry.ByNickname(cmd.Nickname); err != nil {
		return errors.Wrapf(ErrInvalidTarget, "nickname %q", cmd.Nickname)
	}
	return nil
}

func (h *Hub) getOutTrash(c *client, cmd getOutTrash) error {
	entry, err := h.moderation.Ban(cmd.Nickname)
	if err != nil {
		return err
	}
	h.publish(restrictionSet(entry))
	h.auditf(c, "trash", "%s", cmd.Nickname)
	h.toConsoles("update", trashUpdate{Type: "new-stop", TrashList: h.trashList(), PID: h.id})
	h.notifyRestriction(entry)
	return nil
}

func (h *Hub) allConnectionOut(c *client) error {
	h.auditf(c, "all-connection-out", "disconnect requested")
	h.emitLocal("allConnectionOut", nil, except(c.id))
	return nil
}

func (h *Hub) toggleFreeze(c *client) error {
	h.mtx.Lock()
	h.frozen = !h.frozen
	frozen := h.frozen
	h.mtx.Unlock()
	h.publish(events.FreezeChanged{Frozen: frozen})
	h.emitLocal("freeze", freezeState(frozen), connected)
	if frozen {
		h.auditf(c, "freeze", "chat frozen")
	} else {
		h.auditf(c, "unfreeze", "chat unfrozen")
	}
	return nil
}

func (h *Hub) clean(c *client, cmd clean) error {
	h.auditf(c, "clean", "%s", cmd.Name)
	h.toRoom("clean", cmd.Name)
	return nil
}

func (h *Hub) banner(c *client, cmd banner) error {
	if cmd.Show {
		h.toRoom(EventBannerShow, nil)
	} else {
		h.toRoom(EventBannerHide, nil)
	}
	return nil
}

func (h *Hub) notice(c *client, cmd notice) error {
	switch cmd.Type {
	case "insert":
		ev := events.New(h.id, events.NoticeInserted{Key: cmd.Key, Message: cmd.Message})
		ev.Timestamp = h.notices.Set(cmd.Key, cmd.Message, h.scheduler.Now().UnixNano())
		h.publishEvent(ev)
		h.emitLocal("update", noticeUpdate{Type: "notice-insert", Key: cmd.Key, Message: cmd.Message}, connected)
		h.auditf(c, "notice-insert", "%s", cmd.Key)
	case "delete":
		ev := events.New(h.id, events.NoticeDeleted{Key: cmd.Key})
		at, removed := h.notices.Remove(cmd.Key, h.scheduler.Now().UnixNano())
		ev.Timestamp = at
		h.publishEvent(ev)
		if removed {
			h.emitLocal("update", noticeUpdate{Type: "notice-delete", Key: cmd.Key}, connected)
		}
		h.auditf(c, "notice-delete", "%s", cmd.Key)
	default:
		return errors.Wrapf(ErrUnknownNoticeAction, "action %q", cmd.Type)
	}
	return nil
}

func (h *Hub) vote(c *client, cmd vote) error {
	switch cmd.Type {
	case "start":
		poll, err := h.polls.Start(uuid.New().String(), cmd.Title, cmd.Options)
		if err != nil {
			return err
		}
		h.publish(events.PollStarted{PollID: poll.ID, Title: poll.Title, Options: poll.Options})
		h.emitLocal("vote-start", voteStart{ID: poll.ID, Title: poll.Title, List: poll.Options}, connected)
		h.auditf(c, "vote-start", "%s", poll.Title)
	case "end":
		poll, err := h.polls.End()
		if err != nil {
			h.auditf(c, "vote-end-failed", "%v", err)
			return err
		}
		h.publish(events.PollEnded{PollID: poll.ID})
		h.emitLocal("vote-end", voteEnd{ID: poll.ID, Result: poll.Tallies, Message: messagePollClosed}, connected)
		h.auditf(c, "vote-end", "%s", poll.Title)
	default:
		return errors.Wrapf(ErrUnknownVoteAction, "action %q", cmd.Type)
	}
	return nil
}

// trashList renders moderation entries the way consoles expect them: the
// mute length in minutes, or "compulsion" for bans.
func (h *Hub) trashList() map[string]interface{} {
	out := map[string]interface{}{}
	for _, entry := range h.moderation.All() {
		if entry.Permanent {
			out[entry.Nickname] = "compulsion"
		} else {
			out[entry.Nickname] = entry.Minutes
		}
	}
	return out
}

func (h *Hub) noticeMap() map[string]notices.Notice {
	out := map[string]notices.Notice{}
	for _, n := range h.notices.All() {
		out[n.Key] = n
	}
	return out
}
