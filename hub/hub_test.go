package hub

import (
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/moderation"
	"github.com/vx-labs/chat-hub/sessions"
	"github.com/vx-labs/chat-hub/transport"
	"go.uber.org/zap"
)

const (
	testIDSalt   = "id-salt"
	testNickSalt = "nick-salt"
	testSecret   = "s3cr3t"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type emission struct {
	Event   string
	Payload interface{}
}

type fakeConn struct {
	id      string
	mtx     sync.Mutex
	emitted []emission
	frames  chan transport.Frame
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:     uuid.New().String(),
		frames: make(chan transport.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ID() string            { return f.id }
func (f *fakeConn) RemoteAddress() string { return "127.0.0.1:4242" }
func (f *fakeConn) Next() (transport.Frame, error) {
	// queued frames are read before the close is noticed
	select {
	case frame := <-f.frames:
		return frame, nil
	default:
	}
	select {
	case frame := <-f.frames:
		return frame, nil
	case <-f.closed:
		return transport.Frame{}, io.EOF
	}
}
func (f *fakeConn) Emit(event string, payload interface{}) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.emitted = append(f.emitted, emission{Event: event, Payload: payload})
	return nil
}
func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// received returns the payloads of every emission named event.
func (f *fakeConn) received(event string) []interface{} {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	out := []interface{}{}
	for _, e := range f.emitted {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// updates decodes every "update" emission whose type field is kind.
func (f *fakeConn) updates(t *testing.T, kind string) []map[string]interface{} {
	out := []map[string]interface{}{}
	for _, payload := range f.received("update") {
		m := map[string]interface{}{}
		decode(t, payload, &m)
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.emitted = nil
}

func decode(t *testing.T, payload interface{}, v interface{}) {
	buf, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf, v))
}

type testHub struct {
	*Hub
	scheduler *moderation.ManualScheduler
	audit     *logtest.Hook
}

func newTestHub(t *testing.T, network *bus.LocalNetwork, id string) *testHub {
	audit, hook := logtest.NewNullLogger()
	audit.SetLevel(logrus.DebugLevel)
	scheduler := moderation.NewManualScheduler(epoch)
	h, err := New(id, network.Attach(), Config{
		IDSalt:   testIDSalt,
		NickSalt: testNickSalt,
		Secret:   testSecret,
		Words:    []string{"darn"},
	}, zap.NewNop(), WithScheduler(scheduler), WithAuditLogger(audit.WithField("emitter", "hub")))
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return &testHub{Hub: h, scheduler: scheduler, audit: hook}
}

func frame(t *testing.T, event string, data interface{}) transport.Frame {
	if data == nil {
		return transport.Frame{Event: event}
	}
	buf, err := json.Marshal(data)
	require.NoError(t, err)
	return transport.Frame{Event: event, Data: buf}
}

func identity(nickname string, level int, kind string) newUser {
	id := "uid-" + nickname + "-" + strconv.Itoa(level)
	claims := newUser{
		UserID:   id,
		Nickname: nickname,
		Level:    level,
		IDSig:    Sign(id, testIDSalt),
		Type:     kind,
	}
	if level >= sessions.LevelOwner {
		claims.Secret = testSecret
	} else {
		claims.NickSig = Sign(nickname, testNickSalt)
	}
	return claims
}

func (h *testHub) connect(t *testing.T, nickname string, level int, kind string) (*client, *fakeConn) {
	conn := newFakeConn()
	c := h.accept(conn)
	require.NoError(t, h.handle(c, frame(t, EventNewUser, identity(nickname, level, kind))))
	return c, conn
}

func (h *testHub) user(t *testing.T, nickname string) (*client, *fakeConn) {
	return h.connect(t, nickname, sessions.LevelUser, "")
}
func (h *testHub) owner(t *testing.T, nickname string) (*client, *fakeConn) {
	return h.connect(t, nickname, sessions.LevelOwner, "")
}
func (h *testHub) admin(t *testing.T, nickname string) (*client, *fakeConn) {
	return h.connect(t, nickname, sessions.LevelAdmin, "admin")
}
func (h *testHub) console(t *testing.T, nickname string) (*client, *fakeConn) {
	return h.connect(t, nickname, sessions.LevelAdmin, "console")
}

func (h *testHub) send(t *testing.T, c *client, event string, data interface{}) error {
	return h.handle(c, frame(t, event, data))
}

func (h *testHub) auditActions() []string {
	out := []string{}
	for _, entry := range h.audit.AllEntries() {
		if action, ok := entry.Data["action"].(string); ok {
			out = append(out, action)
		}
	}
	return out
}
