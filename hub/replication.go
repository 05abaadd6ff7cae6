package hub

import (
	"fmt"
	"time"

	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/moderation"
	"github.com/vx-labs/chat-hub/sessions"
	"go.uber.org/zap"
)

func (h *Hub) publish(payload events.Payload) {
	h.publishEvent(events.New(h.id, payload))
}

func (h *Hub) publishEvent(ev events.Event) {
	kind := string(ev.Kind())
	buf, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event_kind", kind), zap.Error(err))
		return
	}
	if err := h.bus.Publish(buf); err != nil {
		replicationEvents.WithLabelValues(kind, "dropped").Inc()
		h.logger.Warn("failed to publish event", zap.String("event_kind", kind), zap.Error(err))
		return
	}
	replicationEvents.WithLabelValues(kind, "published").Inc()
}

// onMessage is the bus subscriber. It never lets a faulty event escape.
func (h *Hub) onMessage(buf []byte) {
	defer func() {
		if r := recover(); r != nil {
			replicationEvents.WithLabelValues("unknown", "panic").Inc()
			h.logger.Error("replication handler panicked", zap.String("panic_log", fmt.Sprint(r)))
		}
	}()
	ev, err := events.Decode(buf)
	if err != nil {
		replicationEvents.WithLabelValues("unknown", "invalid").Inc()
		h.logger.Warn("dropped invalid event", zap.Error(err))
		return
	}
	kind := string(ev.Kind())
	if ev.Origin == h.id {
		replicationEvents.WithLabelValues(kind, "self").Inc()
		return
	}
	if seen, _ := h.seen.ContainsOrAdd(ev.ID, struct{}{}); seen {
		replicationEvents.WithLabelValues(kind, "duplicate").Inc()
		return
	}
	h.apply(ev)
	replicationEvents.WithLabelValues(kind, "applied").Inc()
}

func (h *Hub) apply(ev events.Event) {
	switch p := ev.Payload.(type) {
	case events.SessionConnected:
		h.applyConnected(ev.Origin, p)
	case events.SessionDisconnected:
		h.mtx.Lock()
		h.count--
		h.peerCounts[ev.Origin]--
		count := h.count
		h.mtx.Unlock()
		connectedCount.Set(float64(count))
		if p.SessionID != "" {
			h.registry.Delete(p.SessionID)
		}
	case events.SessionEvicted:
		for _, c := range h.locals(withSessionID(p.SessionID)) {
			c.logger.Info("session admitted elsewhere, closing")
			c.conn.Close()
		}
	case events.FreezeChanged:
		h.mtx.Lock()
		h.frozen = p.Frozen
		h.mtx.Unlock()
		h.emitLocal("freeze", freezeState(p.Frozen), connected)
	case events.RestrictionSet:
		entry := moderation.Entry{
			Nickname:   p.Nickname,
			Minutes:    p.Minutes,
			Permanent:  p.Permanent,
			Owner:      p.Owner,
			Generation: p.Generation,
		}
		if p.Expires > 0 {
			entry.Expires = time.Unix(0, p.Expires)
		}
		h.moderation.Apply(entry)
		h.notifyRestriction(entry)
	case events.RestrictionReleased:
		if h.moderation.Release(p.Nickname, p.Owner, p.Generation) {
			h.emitLocal("chatRelease", nil, withNickname(p.Nickname))
		}
	case events.NoticeInserted:
		if h.notices.Insert(p.Key, p.Message, ev.Timestamp) {
			h.emitLocal("update", noticeUpdate{Type: "notice-insert", Key: p.Key, Message: p.Message}, connected)
		}
	case events.NoticeDeleted:
		if h.notices.Delete(p.Key, ev.Timestamp) {
			h.emitLocal("update", noticeUpdate{Type: "notice-delete", Key: p.Key}, connected)
		}
	case events.PollStarted:
		if _, err := h.polls.Start(p.PollID, p.Title, p.Options); err != nil {
			h.logger.Warn("ignored invalid poll", zap.String("poll_id", p.PollID), zap.Error(err))
			return
		}
		h.emitLocal("vote-start", voteStart{ID: p.PollID, Title: p.Title, List: p.Options}, connected)
	case events.PollEnded:
		if poll, ok := h.polls.ApplyEnd(p.PollID); ok {
			h.emitLocal("vote-end", voteEnd{ID: poll.ID, Result: poll.Tallies, Message: messagePollClosed}, connected)
		}
	case events.VoteCast:
		h.polls.ApplyVote(p.PollID, p.Voter, p.Option)
	case events.ConsoleLog:
		h.emitLocal("adm-console", consoleLine{Type: "log", Data: p.Line, PID: ev.Origin}, inBucket(sessions.BucketConsole))
	case events.ConsoleEmit:
		h.emitLocal(p.Event, rawPayload(p.Body), inBucket(sessions.BucketConsole))
	case events.RoomBroadcast:
		h.emitLocal(p.Event, rawPayload(p.Body), connected)
	}
}

func (h *Hub) applyConnected(origin string, p events.SessionConnected) {
	h.mtx.Lock()
	h.count++
	h.peerCounts[origin]++
	count := h.count
	h.mtx.Unlock()
	connectedCount.Set(float64(count))

	bucket := sessions.Bucket(p.Bucket)
	if !bucket.Privileged() || p.SessionID == "" {
		return
	}
	sess := sessions.Session{
		ID:       p.SessionID,
		Nickname: p.Nickname,
		UserID:   p.UserID,
		Bucket:   bucket,
		Peer:     origin,
	}
	var err error
	if bucket == sessions.BucketOwner {
		var displaced []sessions.Session
		displaced, err = h.registry.ReplaceOwner(sess)
		h.displaceOwners(displaced)
	} else {
		err = h.registry.Upsert(sess)
	}
	if err != nil {
		h.logger.Warn("failed to mirror session", zap.String("session_id", p.SessionID), zap.Error(err))
	}
}

// notifyRestriction tells the target, if held here, about a new entry.
func (h *Hub) notifyRestriction(entry moderation.Entry) {
	for _, c := range h.locals(withNickname(entry.Nickname)) {
		if entry.Permanent {
			c.conn.Emit("compulsion", nil)
			c.conn.Close()
			continue
		}
		c.conn.Emit("chatStop", chatStopNotice{
			Duration: (time.Duration(entry.Minutes) * time.Minute).Milliseconds(),
			Reason:   "new",
		})
	}
}

// onRestrictionExpired runs when a locally created mute expires.
func (h *Hub) onRestrictionExpired(entry moderation.Entry) {
	h.publish(events.RestrictionReleased{
		Nickname:   entry.Nickname,
		Owner:      entry.Owner,
		Generation: entry.Generation,
	})
	h.emitLocal("chatRelease", nil, withNickname(entry.Nickname))
	h.toConsoles("update", trashUpdate{Type: "release-stop", TrashList: h.trashList(), PID: h.id})
	h.logger.Info("restriction expired", zap.String("nickname", entry.Nickname))
}

func restrictionSet(entry moderation.Entry) events.RestrictionSet {
	out := events.RestrictionSet{
		Nickname:   entry.Nickname,
		Minutes:    entry.Minutes,
		Permanent:  entry.Permanent,
		Owner:      entry.Owner,
		Generation: entry.Generation,
	}
	if !entry.Expires.IsZero() {
		out.Expires = entry.Expires.UnixNano()
	}
	return out
}

func freezeState(frozen bool) freezeNotice {
	if frozen {
		return freezeNotice{Message: messageFrozen, IsFreeze: true}
	}
	return freezeNotice{Message: messageUnfrozen, IsFreeze: false}
}

// displaceOwners closes the local connections of owner sessions replaced by a
// newer owner.
func (h *Hub) displaceOwners(displaced []sessions.Session) {
	for _, old := range displaced {
		h.logger.Info("owner session replaced", zap.String("session_id", old.ID),
			zap.String("nickname", old.Nickname), zap.String("peer_id", old.Peer))
		if old.Peer != h.id {
			continue
		}
		for _, c := range h.locals(withSessionID(old.ID)) {
			c.conn.Close()
		}
	}
}

// onPeerLeft forgets what a departed peer announced: its mirrored sessions
// and its share of the connected count.
func (h *Hub) onPeerLeft(peer string) {
	if peer == h.id {
		return
	}
	h.mtx.Lock()
	lost := h.peerCounts[peer]
	delete(h.peerCounts, peer)
	h.count -= lost
	count := h.count
	h.mtx.Unlock()
	connectedCount.Set(float64(count))

	set, err := h.registry.ByPeer(peer)
	if err != nil {
		h.logger.Warn("failed to list sessions of departed peer", zap.String("peer_id", peer), zap.Error(err))
		return
	}
	changed := map[sessions.Bucket]bool{}
	for _, sess := range set {
		h.registry.Delete(sess.ID)
		changed[sess.Bucket] = true
	}
	consoles := inBucket(sessions.BucketConsole)
	if changed[sessions.BucketOwner] {
		h.emitLocal("update", ownerUpdate{Type: "owner-disconnect", Owner: h.owner(), PID: peer}, consoles)
	}
	if changed[sessions.BucketAdmin] {
		h.emitLocal("update", adminUpdate{Type: "admin-disconnect", AdminList: h.sessionList(sessions.BucketAdmin), PID: peer}, consoles)
	}
	if changed[sessions.BucketConsole] {
		h.emitLocal("update", consoleUpdate{Type: "console-disconnect", ConsoleList: h.sessionList(sessions.BucketConsole), PID: peer}, consoles)
	}
	h.logger.Info("peer left", zap.String("peer_id", peer), zap.Int64("sessions", lost), zap.Int("mirrored", len(set)))
}
