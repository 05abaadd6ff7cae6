package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	proxyproto "github.com/armon/go-proxyproto"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

type wsConn struct {
	id       string
	conn     net.Conn
	remote   string
	outbound chan []byte
	quit     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func newWSConn(conn net.Conn, remote string, queueSize int, logger *zap.Logger) *wsConn {
	c := &wsConn{
		id:       uuid.New().String(),
		conn:     conn,
		remote:   remote,
		outbound: make(chan []byte, queueSize),
		quit:     make(chan struct{}),
	}
	c.logger = logger.With(zap.String("session_id", c.id), zap.String("remote_address", remote))
	go c.writeLoop()
	return c
}

func (c *wsConn) ID() string            { return c.id }
func (c *wsConn) RemoteAddress() string { return c.remote }

func (c *wsConn) Next() (Frame, error) {
	buf, _, err := wsutil.ReadClientData(c.conn)
	if err != nil {
		return Frame{}, err
	}
	return decodeFrame(buf)
}

func (c *wsConn) Emit(event string, payload interface{}) error {
	buf, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}
	select {
	case c.outbound <- buf:
		return nil
	case <-c.quit:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

func (c *wsConn) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.quit:
			c.drain()
			return
		case buf := <-c.outbound:
			if err := c.write(buf); err != nil {
				c.logger.Debug("failed to write frame", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

// drain flushes frames queued before Close, so a goodbye event reaches the
// client before the socket is torn down.
func (c *wsConn) drain() {
	for {
		select {
		case buf := <-c.outbound:
			if err := c.write(buf); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(buf []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wsutil.WriteServerText(c.conn, buf)
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.quit)
	})
	return nil
}

type Config struct {
	Port      int
	Path      string
	QueueSize int
}

type Server struct {
	listener net.Listener
	server   *http.Server
	logger   *zap.Logger
}

// NewWSTransport serves WebSocket upgrades on config.Path. handler owns the
// connection and is run on the request goroutine.
func NewWSTransport(config Config, logger *zap.Logger, handler func(Conn)) (*Server, error) {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Path == "" {
		config.Path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(config.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("websocket negociation failed", zap.String("remote_address", r.RemoteAddr), zap.Error(err))
			return
		}
		handler(newWSConn(conn, r.RemoteAddr, config.QueueSize, logger))
	})
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: &proxyproto.Listener{Listener: ln},
		server:   &http.Server{Handler: mux},
		logger:   logger,
	}
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket listener stopped", zap.Error(err))
		}
	}()
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Close() error {
	return s.server.Close()
}
