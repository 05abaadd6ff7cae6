package hub

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/sessions"
)

func cluster(t *testing.T) (*bus.LocalNetwork, *testHub, *testHub) {
	network := bus.NewLocalNetwork()
	return network, newTestHub(t, network, "p1"), newTestHub(t, network, "p2")
}

func inject(t *testing.T, b bus.Bus, ev events.Event) {
	buf, err := events.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, b.Publish(buf))
}

func TestReplicatedCount(t *testing.T) {
	_, p1, p2 := cluster(t)
	alice, _ := p1.user(t, "alice")
	p2.user(t, "bob")
	require.Equal(t, int64(2), p1.Count())
	require.Equal(t, int64(2), p2.Count())

	// ordinary sessions are counted but not mirrored
	_, err := p2.registry.ByNickname("alice")
	require.Equal(t, sessions.ErrSessionNotFound, errors.Cause(err))

	p1.release(alice)
	require.Equal(t, int64(1), p1.Count())
	require.Equal(t, int64(1), p2.Count())
}

func TestReplicatedPrivilegedSessions(t *testing.T) {
	_, p1, p2 := cluster(t)
	_, console := p2.console(t, "watcher")
	admin, _ := p1.admin(t, "mod")

	sess, err := p2.registry.ByNickname("mod")
	require.NoError(t, err)
	require.Equal(t, sessions.BucketAdmin, sess.Bucket)
	require.Equal(t, "p1", sess.Peer)

	updates := console.updates(t, "new-admin")
	require.Len(t, updates, 1)
	require.Contains(t, updates[0]["adminList"], "mod")

	p1.release(admin)
	_, err = p2.registry.ByNickname("mod")
	require.Equal(t, sessions.ErrSessionNotFound, errors.Cause(err))
	require.Len(t, console.updates(t, "admin-disconnect"), 1)
}

func TestCrossProcessEviction(t *testing.T) {
	_, p1, p2 := cluster(t)
	old, oldConn := p1.admin(t, "mod")
	_, newConn := p2.admin(t, "mod")

	require.True(t, oldConn.isClosed())
	require.False(t, newConn.isClosed())

	// the evicted read loop ends on p1
	p1.release(old)
	for _, h := range []*testHub{p1, p2} {
		set, err := h.registry.AllByNickname("mod")
		require.NoError(t, err)
		require.Len(t, set, 1, h.id)
		require.Equal(t, "p2", set[0].Peer, h.id)
		require.Equal(t, int64(1), h.Count(), h.id)
	}
}

func TestOwnerSingleton(t *testing.T) {
	_, p1, p2 := cluster(t)
	_, firstConn := p1.owner(t, "boss")
	_, secondConn := p2.owner(t, "boss-2")

	// the replaced owner is closed by the process holding it
	require.True(t, firstConn.isClosed())
	require.False(t, secondConn.isClosed())

	for _, h := range []*testHub{p1, p2} {
		set, err := h.registry.ByBucket(sessions.BucketOwner)
		require.NoError(t, err)
		require.Len(t, set, 1, h.id)
		require.Equal(t, "boss-2", set[0].Nickname, h.id)
	}
}

func TestReplicatedFreeze(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	bob, bobConn := p2.user(t, "bob")
	_, carolConn := p2.user(t, "carol")

	require.NoError(t, p1.send(t, owner, EventFreeze, nil))
	require.True(t, p2.Frozen())
	require.Equal(t, []interface{}{freezeNotice{Message: messageFrozen, IsFreeze: true}}, bobConn.received("freeze"))

	carolConn.reset()
	require.NoError(t, p2.send(t, bob, EventMessage, chatMessage{Message: "hello"}))
	require.Empty(t, carolConn.received("update"))
}

func TestReplicatedMute(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	_, aliceConn := p2.user(t, "alice")

	// alice is not mirrored on p1; the restriction still replicates
	err := p1.send(t, owner, EventChatStop, chatStop{Nickname: "alice", Minutes: 1})
	require.Equal(t, ErrInvalidTarget, errors.Cause(err))
	require.True(t, p2.moderation.Restricted("alice"))
	require.Equal(t, []interface{}{chatStopNotice{Duration: time.Minute.Milliseconds(), Reason: "new"}}, aliceConn.received("chatStop"))

	t.Run("replicas do not release entries", func(t *testing.T) {
		p2.scheduler.Advance(30 * time.Second)
		require.True(t, p2.moderation.Restricted("alice"))
		require.Empty(t, aliceConn.received("chatRelease"))
	})
	t.Run("lapsed entries stop blocking chat", func(t *testing.T) {
		// the release from p1 has not arrived yet
		p2.scheduler.Advance(time.Hour)
		require.False(t, p2.moderation.Restricted("alice"))
		require.Empty(t, aliceConn.received("chatRelease"))
	})
	t.Run("origin releases", func(t *testing.T) {
		p1.scheduler.Advance(time.Minute)
		require.False(t, p1.moderation.Restricted("alice"))
		require.False(t, p2.moderation.Restricted("alice"))
		require.Len(t, aliceConn.received("chatRelease"), 1)
	})
}

func TestReplicatedBan(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	_, trollConn := p2.user(t, "troll")

	require.NoError(t, p1.send(t, owner, EventGetOutTrash, getOutTrash{Nickname: "troll"}))
	require.Len(t, trollConn.received("compulsion"), 1)
	require.True(t, trollConn.isClosed())

	c := p2.accept(newFakeConn())
	require.Equal(t, ErrBanned, p2.send(t, c, EventNewUser, identity("troll", sessions.LevelUser, "")))
}

func TestSupersededRestriction(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner1, _ := p1.owner(t, "boss")
	p2.user(t, "alice")

	p1.send(t, owner1, EventChatStop, chatStop{Nickname: "alice", Minutes: 1})
	owner2, _ := p2.owner(t, "boss-2")
	p2.send(t, owner2, EventChatStop, chatStop{Nickname: "alice", Minutes: 10})

	entry, ok := p1.moderation.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "p2", entry.Owner)

	// p1's timer was stopped when p2's entry replaced its own
	p1.scheduler.Advance(time.Minute)
	require.True(t, p1.moderation.Restricted("alice"))
	require.True(t, p2.moderation.Restricted("alice"))

	t.Run("stale release", func(t *testing.T) {
		inject(t, p1.bus, events.New("p1-restarted", events.RestrictionReleased{Nickname: "alice", Owner: "p1", Generation: 1}))
		require.True(t, p2.moderation.Restricted("alice"))
	})
	t.Run("current release", func(t *testing.T) {
		p2.scheduler.Advance(10 * time.Minute)
		require.False(t, p1.moderation.Restricted("alice"))
		require.False(t, p2.moderation.Restricted("alice"))
	})
}

func TestReplicationFiltering(t *testing.T) {
	network, p1, _ := cluster(t)
	raw := network.Attach()
	defer raw.Close()
	base := p1.Count()

	t.Run("duplicate", func(t *testing.T) {
		ev := events.New("p9", events.SessionConnected{Bucket: string(sessions.BucketUser)})
		inject(t, raw, ev)
		inject(t, raw, ev)
		require.Equal(t, base+1, p1.Count())
	})
	t.Run("self", func(t *testing.T) {
		inject(t, raw, events.New("p1", events.SessionConnected{Bucket: string(sessions.BucketUser)}))
		require.Equal(t, base+1, p1.Count())
	})
	t.Run("invalid", func(t *testing.T) {
		require.NotPanics(t, func() {
			require.NoError(t, raw.Publish([]byte("not an event")))
		})
		require.Equal(t, base+1, p1.Count())
	})
}

func TestReplicatedNotices(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	_, bobConn := p2.user(t, "bob")

	require.NoError(t, p1.send(t, owner, EventNotice, notice{Type: "insert", Key: "rules", Message: "be nice"}))
	message, ok := p2.notices.Get("rules")
	require.True(t, ok)
	require.Equal(t, "be nice", message)
	require.Len(t, bobConn.updates(t, "notice-insert"), 1)

	require.NoError(t, p1.send(t, owner, EventNotice, notice{Type: "delete", Key: "rules"}))
	_, ok = p2.notices.Get("rules")
	require.False(t, ok)
	require.Len(t, bobConn.updates(t, "notice-delete"), 1)

	_, lateConn := p2.user(t, "late")
	updates := lateConn.updates(t, "connect")
	require.Len(t, updates, 1)
	require.Empty(t, updates[0]["notice"])
}

func TestReplicatedPoll(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	bob, bobConn := p2.user(t, "bob")
	alice, _ := p1.user(t, "alice")

	require.NoError(t, p1.send(t, owner, EventVote, vote{Type: "start", Title: "lunch?", Options: []string{"pizza", "sushi"}}))
	started := bobConn.received("vote-start")
	require.Len(t, started, 1)
	local, ok := p1.polls.Current()
	require.True(t, ok)
	require.Equal(t, local.ID, started[0].(voteStart).ID)

	require.NoError(t, p2.send(t, bob, EventVoteCount, voteCount{Value: "pizza"}))
	require.NoError(t, p1.send(t, alice, EventVoteCount, voteCount{Value: "pizza"}))
	for _, h := range []*testHub{p1, p2} {
		poll, ok := h.polls.Current()
		require.True(t, ok)
		assert.Equal(t, int64(2), poll.Tallies["pizza"].Count, h.id)
	}

	require.NoError(t, p1.send(t, owner, EventVote, vote{Type: "end"}))
	ended := bobConn.received("vote-end")
	require.Len(t, ended, 1)
	require.Equal(t, int64(2), ended[0].(voteEnd).Result["pizza"].Count)
	_, ok = p2.polls.Current()
	require.False(t, ok)
}

func TestReplicatedBroadcasts(t *testing.T) {
	_, p1, p2 := cluster(t)
	owner, _ := p1.owner(t, "boss")
	_, console := p2.console(t, "watcher")
	_, bobConn := p2.user(t, "bob")

	t.Run("room", func(t *testing.T) {
		require.NoError(t, p1.send(t, owner, EventSystemMessage, systemMessage{Message: "hello"}))
		received := bobConn.received("system")
		require.Len(t, received, 1)
		message := ""
		decode(t, received[0], &message)
		require.Equal(t, "hello", message)
	})
	t.Run("console log", func(t *testing.T) {
		lines := []consoleLine{}
		for _, payload := range console.received("adm-console") {
			line := consoleLine{}
			decode(t, payload, &line)
			if line.PID == "p1" {
				lines = append(lines, line)
			}
		}
		require.NotEmpty(t, lines)
		require.Contains(t, lines[len(lines)-1].Data, "[system]")
	})
	t.Run("chat stays local", func(t *testing.T) {
		bobConn.reset()
		require.NoError(t, p1.send(t, owner, EventMessage, chatMessage{Message: "local only"}))
		require.Empty(t, bobConn.received("update"))
	})
}

func TestPresence(t *testing.T) {
	_, p1, p2 := cluster(t)
	_, aliceConn := p1.user(t, "alice")
	p2.user(t, "bob")

	aliceConn.reset()
	p1.broadcastPresence()
	require.Equal(t, []interface{}{countUpdate{Type: "count", Value: 2, PID: "p1"}}, aliceConn.received("update"))
}

func TestReplicatedNoticeOrdering(t *testing.T) {
	network, p1, _ := cluster(t)
	raw := network.Attach()
	defer raw.Close()
	_, aliceConn := p1.user(t, "alice")
	aliceConn.reset()

	deleted := events.New("p9", events.NoticeDeleted{Key: "rules"})
	inserted := events.New("p9", events.NoticeInserted{Key: "rules", Message: "be nice"})
	inserted.Timestamp = deleted.Timestamp - 1
	inject(t, raw, deleted)
	inject(t, raw, inserted)

	_, ok := p1.notices.Get("rules")
	require.False(t, ok)
	require.Empty(t, aliceConn.received("update"))
}

func TestPeerLeft(t *testing.T) {
	network, p1, p2 := cluster(t)
	_, console := p1.console(t, "watcher")
	p2.admin(t, "mod")
	p2.owner(t, "boss")
	p2.user(t, "bob")
	require.Equal(t, int64(4), p1.Count())
	console.reset()

	network.Leave("p2")
	require.Equal(t, int64(1), p1.Count())
	set, err := p1.registry.ByPeer("p2")
	require.NoError(t, err)
	require.Empty(t, set)
	require.Len(t, console.updates(t, "admin-disconnect"), 1)
	owner := console.updates(t, "owner-disconnect")
	require.Len(t, owner, 1)
	require.Equal(t, []interface{}{}, owner[0]["owner"])

	t.Run("own departure is ignored", func(t *testing.T) {
		require.Equal(t, int64(4), p2.Count())
		_, err := p2.registry.ByNickname("mod")
		require.NoError(t, err)
	})
}
