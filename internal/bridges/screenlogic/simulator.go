package screenlogic

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// simulatorIdleTimeout closes simulator connections that stop talking.
const simulatorIdleTimeout = time.Minute

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	// Password the simulator accepts. Default: DefaultPassword.
	Password string

	// ChallengeOpcode answers the challenge query. Default:
	// OpChallengeAnswer; tests set another value to provoke a rejected
	// handshake.
	ChallengeOpcode uint16

	// MAC is returned in the challenge answer.
	MAC string

	Logger Logger
}

// Simulator is a TCP server that speaks the controller protocol from a
// Snapshot. It serves local development and end-to-end tests.
//
// Thread Safety: All methods are safe for concurrent use.
type Simulator struct {
	opts     SimulatorOptions
	listener net.Listener

	mu       sync.Mutex
	snapshot Snapshot
	conns    map[net.Conn]struct{}

	queries  sync.Map // opcode -> *atomic.Int64
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSimulator starts serving snap on addr, e.g. "127.0.0.1:0".
func NewSimulator(addr string, snap Snapshot, opts SimulatorOptions) (*Simulator, error) {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.ChallengeOpcode == 0 {
		opts.ChallengeOpcode = OpChallengeAnswer
	}
	if opts.MAC == "" {
		opts.MAC = "00-C0-33-00-00-01"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("simulator listen: %w", err)
	}

	s := &Simulator{
		opts:     opts,
		listener: listener,
		snapshot: snap.Clone(),
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address.
func (s *Simulator) Addr() *net.TCPAddr {
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// GatewayInfo describes the simulator as a discovered controller.
func (s *Simulator) GatewayInfo() GatewayInfo {
	addr := s.Addr()
	return GatewayInfo{
		IP:   addr.IP.String(),
		Port: addr.Port,
		Name: "Pentair: SIM-UL-ATOR",
	}
}

// Snapshot returns a copy of the data being served.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// SetSnapshot replaces the data being served.
func (s *Simulator) SetSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap.Clone()
	s.mu.Unlock()
}

// Queries returns how many messages with opcode have been received.
func (s *Simulator) Queries(opcode uint16) int64 {
	if v, ok := s.queries.Load(opcode); ok {
		return v.(*atomic.Int64).Load() //nolint:forcetypeassert // only *atomic.Int64 is stored
	}
	return 0
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Simulator) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()

		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}

func (s *Simulator) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logError("simulator accept failed", err)
			}
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Simulator) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(simulatorIdleTimeout))
	preamble := make([]byte, len(ConnectPreamble))
	if _, err := io.ReadFull(conn, preamble); err != nil || string(preamble) != ConnectPreamble {
		return
	}

	header := make([]byte, HeaderSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(simulatorIdleTimeout))
		if _, err := io.ReadFull(conn, header); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logDebug("simulator read failed", "error", err)
			}
			return
		}
		opcode, length, _ := decodeHeader(header)
		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		s.count(opcode)

		answer, answerPayload := s.answer(opcode, payload)
		if _, err := conn.Write(EncodeMessage(answer, answerPayload)); err != nil {
			return
		}
	}
}

func (s *Simulator) count(opcode uint16) {
	v, _ := s.queries.LoadOrStore(opcode, new(atomic.Int64))
	v.(*atomic.Int64).Add(1) //nolint:forcetypeassert // only *atomic.Int64 is stored
}

// answer produces the reply for one query.
func (s *Simulator) answer(opcode uint16, payload []byte) (uint16, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch opcode {
	case OpChallengeQuery:
		return s.opts.ChallengeOpcode, encodeAnswerString(s.opts.MAC)
	case OpLoginQuery:
		password, err := ParseLoginPayload(payload)
		if err != nil || password != s.opts.Password {
			return OpUnknownAnswer, nil
		}
		return OpLoginAnswer, nil
	case OpVersionQuery:
		return OpVersionAnswer, VersionAnswerPayload(s.snapshot.Version)
	case OpConfigQuery:
		return OpConfigAnswer, ConfigAnswerPayload(s.snapshot.Config)
	case OpStatusQuery:
		return OpStatusAnswer, StatusAnswerPayload(s.snapshot.Status)
	case OpButtonPressQuery:
		id, state, err := ParseButtonPressPayload(payload)
		if err != nil {
			return OpUnknownAnswer, nil
		}
		circuit, ok := s.snapshot.Status.Circuits[id]
		if !ok || state > 1 {
			return OpUnknownAnswer, nil
		}
		circuit.State = state
		s.snapshot.Status.Circuits[id] = circuit
		return OpButtonPressAnswer, nil
	default:
		return OpUnknownAnswer, nil
	}
}

func (s *Simulator) logError(msg string, err error) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, "error", err)
	}
}

func (s *Simulator) logDebug(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, keysAndValues...)
	}
}

// SampleSnapshot returns a plausible pool and spa installation in
// Fahrenheit with a salt chlorinator. Labels are filled in as DecodeStatus
// would produce them.
func SampleSnapshot() Snapshot {
	cfg := Config{
		Loaded:             true,
		ControllerID:       100,
		MinSetPoint:        [2]uint8{40, 40},
		MaxSetPoint:        [2]uint8{104, 104},
		ControllerType:     13,
		HardwareType:       0,
		ControllerBuffer:   64,
		EquipmentFlags:     0x8024,
		GenericCircuitName: "Water Features",
		Circuits: map[int32]Circuit{
			500: {ID: 500, Name: "Spa", NameIndex: 71, Function: 1, Interface: 1, DefaultRuntime: 720},
			501: {ID: 501, Name: "Cleaner", NameIndex: 22, Function: 5, Interface: 0, DefaultRuntime: 240},
			502: {ID: 502, Name: "Swim Jets", NameIndex: 80, Function: 0, Interface: 1, DefaultRuntime: 720},
			503: {ID: 503, Name: "Pool Light", NameIndex: 62, Function: 16, Interface: 0, ColorSet: 2, DefaultRuntime: 720},
			505: {ID: 505, Name: "Pool", NameIndex: 60, Function: 2, Interface: 0, DefaultRuntime: 720},
		},
		Colors: []Color{
			{Name: "White", R: 255, G: 255, B: 255},
			{Name: "Light Green", R: 160, G: 255, B: 160},
			{Name: "Blue", R: 0, G: 0, B: 255},
			{Name: "Magenta", R: 255, G: 0, B: 128},
		},
		Pumps:             [pumpSlots]uint8{1, 0, 0, 0, 0, 0, 0, 0},
		InterfaceTabFlags: 127,
		ShowAlarms:        0,
	}

	unit := cfg.TemperatureUnit()
	body := func(t BodyType, current, heat, setPoint, cool, mode int32) Body {
		name := t.String()
		return Body{
			Type:               t,
			CurrentTemperature: Reading{Label: "Current " + name + " Temperature", Raw: current, Unit: unit, Kind: KindSensor},
			HeatStatus:         Reading{Label: name + " Heater", Raw: heat, Kind: KindBinarySensor},
			HeatSetPoint:       Reading{Label: name + " Heat Set Point", Raw: setPoint, Unit: unit, Kind: KindSensor},
			CoolSetPoint:       Reading{Label: name + " Cool Set Point", Raw: cool, Unit: unit, Kind: KindSensor},
			HeatMode:           Reading{Label: name + " Heater Mode", Raw: mode, Kind: KindSensor, Format: FormatHeatMode},
		}
	}

	status := Status{
		Loaded:         true,
		OK:             1,
		AirTemperature: Reading{Label: "Air Temperature", Raw: 72, Unit: unit, Kind: KindSensor},
		Bodies: []Body{
			body(BodyPool, 78, 0, 82, 100, 3),
			body(BodySpa, 98, 1, 102, 100, 3),
		},
		Circuits: map[int32]CircuitState{
			500: {ID: 500, State: 0},
			501: {ID: 501, State: 0},
			502: {ID: 502, State: 0},
			503: {ID: 503, State: 1, ColorSet: 2},
			505: {ID: 505, State: 1},
		},
		Chemistry: decodeChemistry(&cursor{buf: chemistryPayload(750, 700, -12, 3200, 4, 5, 0)}),
	}

	return Snapshot{
		Version: "POOL: 5.2 Build 736.0 Rel",
		Config:  cfg,
		Status:  status,
	}
}

func chemistryPayload(values ...int32) []byte {
	w := &writer{}
	for _, v := range values {
		w.int32(v)
	}
	return w.bytes()
}
