package screenlogic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default session timeouts.
const (
	// DefaultConnectTimeout bounds each dial attempt.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds each request/response exchange.
	DefaultRequestTimeout = 5 * time.Second
)

// SessionState is the lifecycle state of a Session.
type SessionState int

// Session states. A session moves forward through the handshake states and
// ends in StateConnected or StateFailed; Disconnect returns it to
// StateDisconnected.
const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateChallenged
	StateLoggedIn
	StateConnected
	StateFailed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateChallenged:
		return "challenged"
	case StateLoggedIn:
		return "logged_in"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SessionConfig holds the connection settings for one controller.
type SessionConfig struct {
	// Host is the controller host name or IP address.
	Host string

	// Port is the controller TCP port.
	Port int

	// Password is sent in the login query. Default: DefaultPassword.
	Password string

	// ConnectTimeout bounds each dial attempt. Default: 5 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout bounds each request. Default: 5 seconds.
	RequestTimeout time.Duration
}

// Gateway is the request surface the Bridge needs from a controller
// connection. *Session implements it; tests substitute fakes.
type Gateway interface {
	Connect(ctx context.Context) error
	Version() string
	GetConfig(ctx context.Context, prev Config) (Config, error)
	GetStatus(ctx context.Context, cfg Config, prev Status) (Status, error)
	SetCircuit(ctx context.Context, circuitID int32, state uint32) error
	Disconnect() error
}

// Ensure Session implements Gateway.
var _ Gateway = (*Session)(nil)

// Session is one authenticated TCP connection to a controller.
//
// Requests are strictly sequential: each writes one message and reads one
// answer before the next may start. Any I/O or protocol failure moves the
// session to StateFailed and closes the socket; the owner is expected to
// discard it and open a new one.
//
// Thread Safety: All methods are safe for concurrent use; requests are
// serialised.
type Session struct {
	cfg SessionConfig
	id  string

	mu      sync.Mutex
	conn    net.Conn
	state   SessionState
	version string

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a disconnected session. Call Connect to open it.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Session{
		cfg: cfg,
		id:  uuid.New().String(),
	}
}

// ID returns the session identifier used in log lines.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the firmware version captured during Connect.
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Connect opens the TCP connection and performs the handshake:
// preamble, challenge, login, then a version query.
//
// Every address the host resolves to is tried in order until one accepts.
//
// Returns:
//   - error: ErrInvalidPassword, ErrConnectFailed, ErrHandshakeRejected or
//     ErrNoResponse; the session is left in StateFailed on any failure
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		return nil
	}

	login, err := LoginPayload(s.cfg.Password)
	if err != nil {
		s.state = StateFailed
		return err
	}

	s.state = StateConnecting
	conn, err := s.dial(ctx)
	if err != nil {
		s.state = StateFailed
		return err
	}
	s.conn = conn

	if err := s.handshake(ctx, login); err != nil {
		s.failLocked()
		return err
	}

	s.logInfo("session connected",
		"session_id", s.id,
		"address", conn.RemoteAddr().String(),
		"version", s.version)

	return nil
}

// dial resolves the host and tries each address until one connects.
func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, s.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrConnectFailed, s.cfg.Host, err)
	}

	port := strconv.Itoa(s.cfg.Port)
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}

	var errs []error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		s.logDebug("dial attempt failed", "session_id", s.id, "address", addr, "error", err)
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, s.cfg.Host, errors.Join(errs...))
}

// handshake runs the login sequence on a freshly dialled connection.
func (s *Session) handshake(ctx context.Context, login []byte) error {
	if err := s.write(ctx, []byte(ConnectPreamble)); err != nil {
		return fmt.Errorf("%w: preamble: %w", ErrConnectFailed, err)
	}

	env, err := s.exchange(ctx, OpChallengeQuery, nil, handshakeResponseBytes)
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}
	if env.Opcode != OpChallengeAnswer {
		return fmt.Errorf("%w: challenge answered with opcode %d", ErrHandshakeRejected, env.Opcode)
	}
	s.state = StateChallenged

	env, err = s.exchange(ctx, OpLoginQuery, login, handshakeResponseBytes)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if env.Opcode != OpLoginAnswer {
		return fmt.Errorf("%w: login answered with opcode %d", ErrHandshakeRejected, env.Opcode)
	}
	s.state = StateLoggedIn

	payload, err := s.requestLocked(ctx, OpVersionQuery, nil, OpVersionAnswer, versionResponseBytes)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	version, err := ParseVersionPayload(payload)
	if err != nil {
		return err
	}
	s.version = version
	s.state = StateConnected

	return nil
}

// Request sends one query and returns the answer payload.
//
// Parameters:
//   - opcode: Query opcode
//   - payload: Query payload, may be nil
//   - expected: Answer opcode the query must produce
//   - maxResponseBytes: Cap on header plus payload bytes kept
//
// Returns:
//   - []byte: Answer payload, possibly cut at the cap
//   - error: ErrNotConnected, ErrNoResponse, ErrUnexpectedOpcode (wrapping
//     ErrUnknownAnswer when the controller rejected the query)
func (s *Session) Request(ctx context.Context, opcode uint16, payload []byte, expected uint16, maxResponseBytes int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, fmt.Errorf("%w: session is %s", ErrNotConnected, s.state)
	}

	answer, err := s.requestLocked(ctx, opcode, payload, expected, maxResponseBytes)
	if err != nil {
		s.failLocked()
		return nil, err
	}
	return answer, nil
}

func (s *Session) requestLocked(ctx context.Context, opcode uint16, payload []byte, expected uint16, maxResponseBytes int) ([]byte, error) {
	env, err := s.exchange(ctx, opcode, payload, maxResponseBytes)
	if err != nil {
		return nil, err
	}

	switch env.Opcode {
	case expected:
		return env.Payload, nil
	case OpUnknownAnswer:
		return nil, fmt.Errorf("%w: query %d: %w", ErrUnexpectedOpcode, opcode, ErrUnknownAnswer)
	default:
		return nil, fmt.Errorf("%w: query %d answered with %d, want %d", ErrUnexpectedOpcode, opcode, env.Opcode, expected)
	}
}

// GetConfig queries and decodes the controller configuration.
func (s *Session) GetConfig(ctx context.Context, prev Config) (Config, error) {
	payload, err := s.Request(ctx, OpConfigQuery, ConfigQueryPayload(), OpConfigAnswer, configResponseBytes)
	if err != nil {
		return Config{}, err
	}
	return DecodeConfig(payload, prev)
}

// GetStatus queries and decodes the pool status.
func (s *Session) GetStatus(ctx context.Context, cfg Config, prev Status) (Status, error) {
	if !cfg.Loaded {
		return Status{}, ErrConfigNotLoaded
	}
	payload, err := s.Request(ctx, OpStatusQuery, StatusQueryPayload(), OpStatusAnswer, statusResponseBytes)
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(payload, cfg, prev)
}

// SetCircuit asks the controller to switch a circuit on (1) or off (0).
// Success means the controller acknowledged the request.
func (s *Session) SetCircuit(ctx context.Context, circuitID int32, state uint32) error {
	if state > 1 {
		return fmt.Errorf("%w: %d", ErrInvalidState, state)
	}
	_, err := s.Request(ctx, OpButtonPressQuery, ButtonPressPayload(circuitID, state), OpButtonPressAnswer, buttonPressResponseBytes)
	if err != nil {
		return fmt.Errorf("%w: circuit %d: %w", ErrCommandRejected, circuitID, err)
	}
	return nil
}

// Disconnect closes the socket. It is safe to call more than once.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
		s.logDebug("session closed", "session_id", s.id)
	}
	s.state = StateDisconnected
	return err
}

// failLocked closes the socket and marks the session failed.
func (s *Session) failLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateFailed
}

// deadline returns the earlier of the request timeout and the ctx deadline.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.cfg.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	return d
}

func (s *Session) write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// exchange writes one framed message and reads one framed answer.
//
// At most maxBytes of the answer (header included) are kept. Bytes the
// controller declared beyond that are read and dropped so the next exchange
// starts at a header.
func (s *Session) exchange(ctx context.Context, opcode uint16, payload []byte, maxBytes int) (Envelope, error) {
	if err := s.write(ctx, EncodeMessage(opcode, payload)); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrNoResponse, err)
	}

	if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		return Envelope{}, fmt.Errorf("set read deadline: %w", err)
	}

	// Unblock the read as soon as ctx is cancelled.
	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return Envelope{}, s.readError(ctx, "header", err)
	}

	answerOpcode, length, err := decodeHeader(header)
	if err != nil {
		return Envelope{}, err
	}

	keep := min(uint64(length), uint64(max(maxBytes-HeaderSize, 0))) //nolint:gosec // maxBytes is a small constant
	body := make([]byte, keep)
	if _, err := io.ReadFull(conn, body); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload of %d bytes: %w", ErrTruncatedPayload, length, s.readError(ctx, "payload", err))
	}

	if rest := uint64(length) - keep; rest > 0 {
		if _, err := io.CopyN(io.Discard, conn, int64(rest)); err != nil { //nolint:gosec // bounded by uint32 length
			return Envelope{}, s.readError(ctx, "payload overflow", err)
		}
		s.logDebug("answer exceeded read cap",
			"session_id", s.id,
			"opcode", answerOpcode,
			"length", length,
			"kept", keep)
	}

	return Envelope{Opcode: answerOpcode, Payload: body}, nil
}

// readError classifies a failed read as ErrNoResponse, preferring the
// context error when the read was cut short by cancellation.
func (s *Session) readError(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%w: %s: %w", ErrNoResponse, what, err)
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
