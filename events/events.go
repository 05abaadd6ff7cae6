package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownKind  = errors.New("unknown event kind")
	ErrEmptyPayload = errors.New("empty event payload")
)

type Kind string

const (
	KindSessionConnected    Kind = "connect"
	KindSessionDisconnected Kind = "disconnect"
	KindSessionEvicted      Kind = "evict"
	KindFreezeChanged       Kind = "freeze"
	KindRestrictionSet      Kind = "chat-stop"
	KindRestrictionReleased Kind = "chat-release"
	KindNoticeInserted      Kind = "notice-insert"
	KindNoticeDeleted       Kind = "notice-delete"
	KindPollStarted         Kind = "vote-start"
	KindPollEnded           Kind = "vote-end"
	KindVoteCast            Kind = "vote-count"
	KindConsoleLog          Kind = "console-log"
	KindConsoleEmit         Kind = "console-emit"
	KindRoomBroadcast       Kind = "room-broadcast"
)

// Payload is implemented by every replicated event body.
type Payload interface {
	Kind() Kind
}

// Event is a decoded replication message.
type Event struct {
	ID        string
	Origin    string
	Timestamp int64
	Payload   Payload
}

func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Time returns the event emission time.
func (e Event) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

type envelope struct {
	ID        string `msgpack:"id"`
	Origin    string `msgpack:"pid"`
	Timestamp int64  `msgpack:"ts"`
	Kind      Kind   `msgpack:"k"`
	Data      []byte `msgpack:"d"`
}

// New stamps a payload with a fresh event id and the origin process id.
func New(origin string, payload Payload) Event {
	return Event{
		ID:        uuid.New().String(),
		Origin:    origin,
		Timestamp: time.Now().UnixNano(),
		Payload:   payload,
	}
}

func Encode(ev Event) ([]byte, error) {
	if ev.Payload == nil {
		return nil, ErrEmptyPayload
	}
	data, err := msgpack.Marshal(ev.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode event payload")
	}
	return msgpack.Marshal(envelope{
		ID:        ev.ID,
		Origin:    ev.Origin,
		Timestamp: ev.Timestamp,
		Kind:      ev.Payload.Kind(),
		Data:      data,
	})
}

func Decode(buf []byte) (Event, error) {
	env := envelope{}
	if err := msgpack.Unmarshal(buf, &env); err != nil {
		return Event{}, errors.Wrap(err, "failed to decode event envelope")
	}
	payload, err := decodePayload(env.Kind, env.Data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        env.ID,
		Origin:    env.Origin,
		Timestamp: env.Timestamp,
		Payload:   payload,
	}, nil
}

func decodePayload(kind Kind, data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var err error
	switch kind {
	case KindSessionConnected:
		p := SessionConnected{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindSessionDisconnected:
		p := SessionDisconnected{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindSessionEvicted:
		p := SessionEvicted{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindFreezeChanged:
		p := FreezeChanged{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindRestrictionSet:
		p := RestrictionSet{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindRestrictionReleased:
		p := RestrictionReleased{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindNoticeInserted:
		p := NoticeInserted{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindNoticeDeleted:
		p := NoticeDeleted{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindPollStarted:
		p := PollStarted{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindPollEnded:
		p := PollEnded{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindVoteCast:
		p := VoteCast{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindConsoleLog:
		p := ConsoleLog{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindConsoleEmit:
		p := ConsoleEmit{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	case KindRoomBroadcast:
		p := RoomBroadcast{}
		err = msgpack.Unmarshal(data, &p)
		return p, wrapDecode(kind, err)
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", kind)
	}
}

func wrapDecode(kind Kind, err error) error {
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s payload", kind)
	}
	return nil
}
