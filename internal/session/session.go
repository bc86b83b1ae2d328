package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mbenhadjer/miniagent/internal/wire"
)

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Config holds the session's connection parameters. Zero values fall back to
// the protocol defaults.
type Config struct {
	Addr       string
	Token      string
	ClientName string

	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	Keepalive      time.Duration
	AckAttempts    int
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = wire.DefaultClientName
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = 500 * time.Millisecond
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 8 * time.Second
	}
	if c.Keepalive <= 0 {
		c.Keepalive = 25 * time.Second
	}
	if c.AckAttempts < 1 {
		c.AckAttempts = 2
	}
	return c
}

// Session owns one logical connection to the operator console. A dedicated
// worker goroutine does all socket I/O (connect, hello, read, reconnect,
// keepalive); Send, SendBestEffort, SendAwaitAck and Close are safe to call
// concurrently from the caller while the worker runs.
type Session struct {
	cfg Config
	log *zap.Logger
	clk clock.Clock

	// OnAck, when set before Start, observes every support_request_ack.
	OnAck func(requestID, roomID string)

	mu      sync.Mutex // guards conn/state/authed and serializes writes
	conn    net.Conn
	state   State
	authed  bool
	authErr *AuthError

	pending *pendingQueue
	bo      *backoff

	ackMu sync.Mutex
	ackCh chan wire.Envelope

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a Session. It does not connect; call Start.
func New(cfg Config, log *zap.Logger, clk clock.Clock) *Session {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		cfg:     cfg,
		log:     log,
		clk:     clk,
		pending: newPendingQueue(),
		bo:      newBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
		closed:  make(chan struct{}),
	}
}

// Start launches the background connection worker.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the hello handshake has completed on the
// current connection.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed && s.conn != nil
}

// Err returns the last server-pushed authentication error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authErr == nil {
		return nil
	}
	return s.authErr
}

// Pending returns the number of buffered outbound frames.
func (s *Session) Pending() int {
	return s.pending.Len()
}

// Send delivers the frame now when authenticated, otherwise buffers it for
// in-order replay after the next successful authentication. A failed
// immediate send also buffers, so Send never reports an error.
func (s *Session) Send(env wire.Envelope) {
	s.send(&env)
}

func (s *Session) send(env *wire.Envelope) {
	if !s.Authenticated() {
		s.log.Debug("not authenticated, buffering frame", zap.String("type", env.Type))
		s.pending.Push(env)
		return
	}
	if err := s.write(*env); err != nil {
		s.log.Warn("send failed, buffering frame", zap.String("type", env.Type), zap.Error(err))
		s.pending.Push(env)
	}
}

// SendBestEffort attempts a single immediate delivery and reports failure
// instead of buffering. Cancellations use this path: replaying a stale
// cancellation after a later reconnect could cancel an unrelated escalation.
func (s *Session) SendBestEffort(env wire.Envelope) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return s.write(env)
}

// SendAwaitAck sends a support request and blocks until the console
// acknowledges it, retrying a bounded number of attempts with a short
// exponential wait in between. Returns the ack's requestId and roomId, or an
// ExhaustedError once the attempts are spent.
func (s *Session) SendAwaitAck(env wire.Envelope) (requestID, roomID string, err error) {
	attempts := s.cfg.AckAttempts
	var last error
	e := &env
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := s.cfg.BackoffFloor * (1 << uint(attempt-1))
			t := s.clk.Timer(wait)
			select {
			case <-t.C:
			case <-s.closed:
				t.Stop()
				return "", "", ErrClosed
			}
		}

		ch := s.registerAck()
		s.send(e)

		t := s.clk.Timer(s.cfg.AckTimeout)
		select {
		case ack := <-ch:
			t.Stop()
			return ack.RequestID, ack.RoomID, nil
		case <-t.C:
			last = ErrAckTimeout
		case <-s.closed:
			t.Stop()
			s.clearAck(ch)
			return "", "", ErrClosed
		}
		s.clearAck(ch)
		// Drop the undelivered copy, if still queued, so the retry cannot
		// leave a duplicate behind.
		s.pending.Remove(e)
		s.log.Warn("support request attempt failed",
			zap.Int("attempt", attempt+1), zap.Int("attempts", attempts), zap.Error(last))
	}
	return "", "", &ExhaustedError{Attempts: attempts, Last: last}
}

// Close stops the worker and tears down the connection. Idempotent; safe to
// call concurrently with any send.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.state = StateDisconnected
		s.authed = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}

func (s *Session) run() {
	defer s.wg.Done()
	var lastAttempt time.Time
	for {
		if !s.awaitNextAttempt(lastAttempt) {
			return
		}
		lastAttempt = s.clk.Now()
		err := s.runOnce()
		select {
		case <-s.closed:
			return
		default:
		}
		if err != nil && !errors.Is(err, io.EOF) {
			s.log.Debug("connection cycle ended", zap.Error(err))
		}
		s.bo.Advance()
	}
}

// awaitNextAttempt waits until at least the current reconnect delay has
// passed since the last attempt. Returns false when the session closes.
func (s *Session) awaitNextAttempt(last time.Time) bool {
	if !last.IsZero() {
		if elapsed := s.clk.Now().Sub(last); elapsed < s.bo.Current() {
			t := s.clk.Timer(s.bo.Current() - elapsed)
			defer t.Stop()
			select {
			case <-t.C:
			case <-s.closed:
				return false
			}
		}
	}
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// runOnce performs one connection cycle: dial, hello, read until the
// connection dies.
func (s *Session) runOnce() error {
	s.setState(StateConnecting)
	s.log.Debug("connecting", zap.String("addr", s.cfg.Addr))

	conn, err := net.DialTimeout("tcp", s.cfg.Addr, s.cfg.ConnectTimeout)
	if err != nil {
		s.setState(StateDisconnected)
		return &ConnectError{Err: err}
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	default:
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	stopPing := make(chan struct{})
	go s.keepalive(stopPing)

	err = s.readLoop(conn)
	close(stopPing)
	s.teardown(conn)
	return err
}

func (s *Session) readLoop(conn net.Conn) error {
	if err := s.write(wire.Hello(s.cfg.Token, s.cfg.ClientName)); err != nil {
		return err
	}
	dec := wire.NewDecoder(conn)
	for {
		env, err := dec.Next()
		if err != nil {
			return err
		}
		s.handleFrame(env)
	}
}

func (s *Session) handleFrame(env wire.Envelope) {
	switch env.Type {
	case wire.TypeHelloAck:
		s.mu.Lock()
		s.authed = true
		s.state = StateAuthenticated
		s.authErr = nil
		s.mu.Unlock()
		s.bo.Reset()
		s.log.Info("handshake complete")
		s.flushPending()

	case wire.TypeError:
		s.handleErrorFrame(env)

	case wire.TypeSupportRequestAck:
		s.log.Info("support request acknowledged",
			zap.String("request_id", env.RequestID), zap.String("room_id", env.RoomID))
		s.ackMu.Lock()
		if s.ackCh != nil {
			select {
			case s.ackCh <- env:
			default:
			}
			s.ackCh = nil
		}
		s.ackMu.Unlock()
		if s.OnAck != nil {
			s.OnAck(env.RequestID, env.RoomID)
		}

	case wire.TypePong:
		s.log.Debug("pong")

	default:
		s.log.Debug("unhandled frame", zap.String("type", env.Type))
	}
}

func (s *Session) handleErrorFrame(env wire.Envelope) {
	switch env.Code {
	case wire.CodeBadAuth:
		// Not fatal to the process: the hold loop keeps running, only the
		// channel stays unauthenticated.
		s.log.Error("authentication rejected; check token", zap.String("message", env.Message))
		s.mu.Lock()
		s.authed = false
		if s.state == StateAuthenticated {
			s.state = StateConnected
		}
		s.authErr = &AuthError{Code: env.Code, Message: env.Message}
		s.mu.Unlock()
	case wire.CodeNoUser:
		s.log.Warn("no signed-in user on console; will retry on a later cycle")
	default:
		s.log.Error("server error",
			zap.String("code", env.Code), zap.String("message", env.Message))
	}
}

// flushPending replays buffered frames in FIFO order. A failed write puts
// the frame back at the head and stops; the rest wait for the next
// authentication.
func (s *Session) flushPending() {
	for {
		env, ok := s.pending.Pop()
		if !ok {
			return
		}
		if err := s.write(*env); err != nil {
			s.log.Warn("flush interrupted, keeping remaining frames", zap.Error(err))
			s.pending.PushFront(env)
			return
		}
		s.log.Debug("flushed pending frame", zap.String("type", env.Type))
	}
}

func (s *Session) keepalive(stop <-chan struct{}) {
	t := s.clk.Ticker(s.cfg.Keepalive)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if !s.Authenticated() {
				continue
			}
			if err := s.write(wire.Ping()); err != nil {
				s.log.Debug("keepalive ping failed", zap.Error(err))
			}
		case <-stop:
			return
		case <-s.closed:
			return
		}
	}
}

func (s *Session) write(env wire.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return &ConnectError{Err: errors.New("no connection")}
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.AckTimeout))
	if err := wire.Encode(s.conn, env); err != nil {
		return &ConnectError{Err: err}
	}
	return nil
}

func (s *Session) teardown(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.state = StateDisconnected
	s.authed = false
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) registerAck() chan wire.Envelope {
	ch := make(chan wire.Envelope, 1)
	s.ackMu.Lock()
	s.ackCh = ch
	s.ackMu.Unlock()
	return ch
}

func (s *Session) clearAck(ch chan wire.Envelope) {
	s.ackMu.Lock()
	if s.ackCh == ch {
		s.ackCh = nil
	}
	s.ackMu.Unlock()
}
