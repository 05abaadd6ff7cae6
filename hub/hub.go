package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/filter"
	"github.com/vx-labs/chat-hub/moderation"
	"github.com/vx-labs/chat-hub/notices"
	"github.com/vx-labs/chat-hub/polls"
	"github.com/vx-labs/chat-hub/sessions"
	"github.com/vx-labs/chat-hub/transport"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrBanned               = errors.New("nickname is banned")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrInvalidTarget        = errors.New("target is not connected")
	ErrUnknownEvent         = errors.New("unknown event")
	ErrUnknownNoticeAction  = errors.New("unknown notice action")
	ErrUnknownVoteAction    = errors.New("unknown vote action")
)

type Config struct {
	IDSalt           string
	NickSalt         string
	Secret           string
	Placeholder      string
	MaxLength        int
	Words            []string
	PresenceInterval time.Duration
	DedupeSize       int
}

type Option func(*Hub)

func WithScheduler(scheduler moderation.Scheduler) Option {
	return func(h *Hub) { h.scheduler = scheduler }
}

func WithAuditLogger(logger logrus.FieldLogger) Option {
	return func(h *Hub) { h.audit = logger }
}

func WithRegistry(registry sessions.Store) Option {
	return func(h *Hub) { h.registry = registry }
}

type client struct {
	id     string
	conn   transport.Conn
	logger *zap.Logger

	// written under Hub.mtx
	authenticated bool
	gone          bool
	nickname      string
	userID        string
	level         int
	bucket        sessions.Bucket
}

func (c *client) Less(than btree.Item) bool {
	return c.id < than.(*client).id
}

// Hub serves client connections and keeps its replicated state in sync with
// the other processes attached to the bus.
type Hub struct {
	id         string
	logger     *zap.Logger
	audit      logrus.FieldLogger
	bus        bus.Bus
	auth       Authenticator
	filter     *filter.Filter
	registry   sessions.Store
	moderation *moderation.Store
	notices    *notices.Board
	polls      *polls.Engine
	scheduler  moderation.Scheduler
	seen       *lru.Cache

	admission sync.Mutex
	mtx       sync.RWMutex
	clients   *btree.BTree
	frozen    bool
	count     int64

	// sessions announced by each remote peer, dropped from count when it leaves
	peerCounts map[string]int64

	cancelSubscription func()
	quit               chan struct{}
	done               chan struct{}
	closeOnce          sync.Once
}

func New(id string, b bus.Bus, config Config, logger *zap.Logger, opts ...Option) (*Hub, error) {
	if config.DedupeSize <= 0 {
		config.DedupeSize = 4096
	}
	seen, err := lru.New(config.DedupeSize)
	if err != nil {
		return nil, err
	}
	h := &Hub{
		id:         id,
		logger:     logger,
		audit:      logrus.New().WithField("emitter", "hub"),
		bus:        b,
		auth:       NewAuthenticator(config.IDSalt, config.NickSalt, config.Secret),
		filter:     filter.New(config.Words, config.Placeholder, config.MaxLength),
		notices:    notices.NewBoard(),
		polls:      polls.NewEngine(),
		seen:       seen,
		clients:    btree.New(2),
		peerCounts: map[string]int64{},
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = sessions.NewStore()
	}
	if h.scheduler == nil {
		h.scheduler = moderation.RealScheduler()
	}
	h.moderation = moderation.NewStore(id, h.scheduler, h.onRestrictionExpired)
	h.cancelSubscription, err = b.Subscribe(h.onMessage)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to bus")
	}
	if watcher, ok := b.(bus.PeerWatcher); ok {
		watcher.OnPeerLeft(h.onPeerLeft)
	}
	if config.PresenceInterval > 0 {
		go h.presenceLoop(config.PresenceInterval)
	} else {
		close(h.done)
	}
	return h, nil
}

func (h *Hub) ID() string {
	return h.id
}

// Health reports the state of the replication bus.
func (h *Hub) Health() string {
	return h.bus.Health()
}

func (h *Hub) Count() int64 {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return h.count
}

func (h *Hub) Frozen() bool {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return h.frozen
}

// Serve runs the read loop of conn until it is closed.
func (h *Hub) Serve(conn transport.Conn) {
	c := h.accept(conn)
	defer h.release(c)
	for {
		frame, err := conn.Next()
		if err != nil {
			if errors.Cause(err) == transport.ErrMalformedFrame {
				c.logger.Debug("dropped malformed frame", zap.Error(err))
				continue
			}
			return
		}
		if err := h.handle(c, frame); err != nil {
			switch errors.Cause(err) {
			case ErrUnauthenticated, ErrUnauthorized, ErrBanned:
				c.logger.Info("closing connection", zap.String("event", frame.Event), zap.Error(err))
				conn.Close()
				return
			}
			c.logger.Debug("failed to handle event", zap.String("event", frame.Event), zap.Error(err))
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.quit)
		<-h.done
		if h.cancelSubscription != nil {
			h.cancelSubscription()
		}
		h.moderation.Close()
		for _, c := range h.locals(nil) {
			c.conn.Close()
		}
	})
}

func (h *Hub) accept(conn transport.Conn) *client {
	c := &client{
		id:     conn.ID(),
		conn:   conn,
		logger: h.logger.With(zap.String("session_id", conn.ID()), zap.String("remote_address", conn.RemoteAddress())),
	}
	h.mtx.Lock()
	h.clients.ReplaceOrInsert(c)
	localSessions.Set(float64(h.clients.Len()))
	h.mtx.Unlock()
	return c
}

func (h *Hub) release(c *client) {
	h.mtx.Lock()
	h.clients.Delete(c)
	localSessions.Set(float64(h.clients.Len()))
	active := c.authenticated && !c.gone
	c.gone = true
	h.mtx.Unlock()
	if active {
		h.dropSession(c)
	}
}

func (h *Hub) handle(c *client, frame transport.Frame) error {
	if !c.authenticated {
		if frame.Event != EventNewUser {
			authFailures.WithLabelValues("no_identity").Inc()
			return errors.Wrapf(ErrUnauthenticated, "received %q before %q", frame.Event, EventNewUser)
		}
		cmd := newUser{}
		if err := decodeData(frame.Data, &cmd); err != nil {
			authFailures.WithLabelValues("malformed").Inc()
			return errors.Wrap(ErrUnauthenticated, err.Error())
		}
		return h.admit(c, cmd)
	}
	if frame.Event == EventNewUser {
		return ErrAlreadyAuthenticated
	}
	if err := h.authorize(c, frame.Event); err != nil {
		return err
	}
	cmd, err := decodeCommand(frame)
	if err != nil {
		return err
	}
	switch cmd := cmd.(type) {
	case *chatMessage:
		return h.chat(c, *cmd)
	case *voteCount:
		return h.castVote(c, *cmd)
	case *report:
		return h.report(c, *cmd)
	case *systemMessage:
		return h.systemMessage(c, *cmd)
	case *chatStop:
		return h.chatStop(c, *cmd)
	case *getOutTrash:
		return h.getOutTrash(c, *cmd)
	case allConnectionOut:
		return h.allConnectionOut(c)
	case freeze:
		return h.toggleFreeze(c)
	case *clean:
		return h.clean(c, *cmd)
	case *notice:
		return h.notice(c, *cmd)
	case *vote:
		return h.vote(c, *cmd)
	case banner:
		return h.banner(c, cmd)
	}
	return errors.Wrapf(ErrUnknownEvent, "event %q", frame.Event)
}

// locals returns the connections matching filter. A nil filter matches every
// tracked connection.
func (h *Hub) locals(filter func(c *client) bool) []*client {
	out := []*client{}
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	h.clients.Ascend(func(i btree.Item) bool {
		c := i.(*client)
		if filter == nil || filter(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

func (h *Hub) emitLocal(event string, payload interface{}, filter func(c *client) bool) {
	for _, c := range h.locals(filter) {
		if err := c.conn.Emit(event, payload); err != nil {
			c.logger.Debug("failed to emit event", zap.String("event", event), zap.Error(err))
		}
	}
}

func rawPayload(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	return json.RawMessage(body)
}

func marshalPayload(payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

func connected(c *client) bool {
	return c.authenticated && !c.gone
}

func except(id string) func(c *client) bool {
	return func(c *client) bool {
		return connected(c) && c.id != id
	}
}

func inBucket(bucket sessions.Bucket) func(c *client) bool {
	return func(c *client) bool {
		return connected(c) && c.bucket == bucket
	}
}

func withNickname(nickname string) func(c *client) bool {
	return func(c *client) bool {
		return connected(c) && c.nickname == nickname
	}
}

func withSessionID(id string) func(c *client) bool {
	return func(c *client) bool {
		return connected(c) && c.id == id
	}
}

func describe(c *client) string {
	return fmt.Sprintf("[%s][%s(%s)]", c.conn.RemoteAddress(), c.nickname, c.userID)
}
