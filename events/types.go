package events

// SessionConnected announces an admitted session. Identity fields are left
// empty for ordinary users, whose sessions are never mirrored.
type SessionConnected struct {
	Bucket    string `msgpack:"bucket"`
	SessionID string `msgpack:"sid,omitempty"`
	Nickname  string `msgpack:"nick,omitempty"`
	UserID    string `msgpack:"uid,omitempty"`
}

func (SessionConnected) Kind() Kind { return KindSessionConnected }

type SessionDisconnected struct {
	Bucket    string `msgpack:"bucket"`
	SessionID string `msgpack:"sid,omitempty"`
	Nickname  string `msgpack:"nick,omitempty"`
}

func (SessionDisconnected) Kind() Kind { return KindSessionDisconnected }

// SessionEvicted asks the process holding SessionID to drop it: the same
// nickname was admitted elsewhere.
type SessionEvicted struct {
	SessionID string `msgpack:"sid"`
	Nickname  string `msgpack:"nick"`
}

func (SessionEvicted) Kind() Kind { return KindSessionEvicted }

type FreezeChanged struct {
	Frozen bool `msgpack:"frozen"`
}

func (FreezeChanged) Kind() Kind { return KindFreezeChanged }

// RestrictionSet creates or replaces the moderation entry of a nickname.
// Owner and Generation identify the entry instance.
type RestrictionSet struct {
	Nickname   string `msgpack:"nick"`
	Minutes    int    `msgpack:"minutes"`
	Permanent  bool   `msgpack:"permanent"`
	Expires    int64  `msgpack:"expires"`
	Owner      string `msgpack:"owner"`
	Generation uint64 `msgpack:"gen"`
}

func (RestrictionSet) Kind() Kind { return KindRestrictionSet }

type RestrictionReleased struct {
	Nickname   string `msgpack:"nick"`
	Owner      string `msgpack:"owner"`
	Generation uint64 `msgpack:"gen"`
}

func (RestrictionReleased) Kind() Kind { return KindRestrictionReleased }

type NoticeInserted struct {
	Key     string `msgpack:"key"`
	Message string `msgpack:"message"`
}

func (NoticeInserted) Kind() Kind { return KindNoticeInserted }

type NoticeDeleted struct {
	Key string `msgpack:"key"`
}

func (NoticeDeleted) Kind() Kind { return KindNoticeDeleted }

type PollStarted struct {
	PollID  string   `msgpack:"id"`
	Title   string   `msgpack:"title"`
	Options []string `msgpack:"options"`
}

func (PollStarted) Kind() Kind { return KindPollStarted }

type PollEnded struct {
	PollID string `msgpack:"id"`
}

func (PollEnded) Kind() Kind { return KindPollEnded }

type VoteCast struct {
	PollID string `msgpack:"id"`
	Voter  string `msgpack:"voter"`
	Option string `msgpack:"option"`
}

func (VoteCast) Kind() Kind { return KindVoteCast }

type ConsoleLog struct {
	Line string `msgpack:"line"`
}

func (ConsoleLog) Kind() Kind { return KindConsoleLog }

// ConsoleEmit carries an already JSON-encoded body destined to console
// sessions.
type ConsoleEmit struct {
	Event string `msgpack:"event"`
	Body  []byte `msgpack:"body"`
}

func (ConsoleEmit) Kind() Kind { return KindConsoleEmit }

// RoomBroadcast carries an already JSON-encoded body destined to every
// session.
type RoomBroadcast struct {
	Event string `msgpack:"event"`
	Body  []byte `msgpack:"body"`
}

func (RoomBroadcast) Kind() Kind { return KindRoomBroadcast }
