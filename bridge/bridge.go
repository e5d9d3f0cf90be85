// Package bridge manages the external simulator process and its control
// protocol: launch (or attach), one request/response round trip per simulated
// time-step, and teardown. The bridge is a boundary resource with an explicit
// lifecycle; nothing else in the system talks to the simulator.
package bridge

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/scenario"
	"github.com/mixedtraffic/loopsim/utils/config"
)

var log = logrus.WithField("module", "bridge")

const (
	dialRetryCount    = 50
	dialRetryInterval = 200 * time.Millisecond
)

// ConnError reports an unreachable or lost simulator connection. It is fatal
// to the current run and is surfaced, never silently retried.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("bridge: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// State is the bridge lifecycle state.
type State int8

const (
	Disconnected State = iota
	Connected
	Stepping
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Stepping:
		return "stepping"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// Bridge drives one simulator process over one control connection. Exactly
// one producer/consumer pair may use a connection endpoint; stepping is
// synchronous and never concurrent.
type Bridge struct {
	sc  *scenario.Scenario
	sim config.Simulator

	state   State
	conn    net.Conn
	cmd     *exec.Cmd
	initial entity.StepState
	// prev is the last snapshot, used for entered/left diffs and for
	// dropping actions aimed at vehicles that already left.
	prev map[string]entity.VehicleState
}

// New creates a bridge for the given scenario and connection parameters.
// Nothing is launched until Start.
func New(sc *scenario.Scenario, sim config.Simulator) *Bridge {
	return &Bridge{sc: sc, sim: sim}
}

// State reports the lifecycle state.
func (b *Bridge) State() State { return b.state }

// Initial returns the snapshot received during Start, valid until the next
// Start.
func (b *Bridge) Initial() entity.StepState { return b.initial }

// Start writes the scenario artifacts, launches the simulator process (or
// attaches, when no binary is configured), connects to the control port with
// bounded retry and performs the protocol handshake. The handshake response
// carries the initial vehicle snapshot, available via Initial.
func (b *Bridge) Start(ctx context.Context) error {
	if b.state != Disconnected {
		return &ConnError{Op: "start", Err: fmt.Errorf("bridge already %s, one bridge per endpoint", b.state)}
	}
	cfgPath, err := b.sc.WriteArtifacts(b.sim)
	if err != nil {
		return err
	}
	if b.sim.Binary != "" {
		cmd := exec.CommandContext(ctx, b.sim.Binary,
			"-c", cfgPath,
			"--remote-port", fmt.Sprintf("%d", b.sim.Port),
		)
		if err := cmd.Start(); err != nil {
			return &ConnError{Op: "start", Err: fmt.Errorf("launch %s: %w", b.sim.Binary, err)}
		}
		b.cmd = cmd
		log.Infof("simulator %s started, pid %d", b.sim.Binary, cmd.Process.Pid)
	}
	if err := b.connect(ctx); err != nil {
		b.Terminate()
		return err
	}
	b.state = Connected
	b.prev = b.initial.Vehicles
	log.Infof("connected to simulator at %s, %d vehicles", b.addr(), len(b.prev))
	return nil
}

func (b *Bridge) addr() string {
	return fmt.Sprintf("%s:%d", b.sim.Host, b.sim.Port)
}

// connect dials the control port until the simulator accepts, then exchanges
// the handshake and reads the initial snapshot.
func (b *Bridge) connect(ctx context.Context) error {
	var conn net.Conn
	var err error
	for i := 0; i < dialRetryCount; i++ {
		if ctx.Err() != nil {
			return &ConnError{Op: "connect", Err: ctx.Err()}
		}
		conn, err = net.DialTimeout("tcp", b.addr(), dialRetryInterval)
		if err == nil {
			break
		}
		time.Sleep(dialRetryInterval)
	}
	if err != nil {
		return &ConnError{Op: "connect", Err: fmt.Errorf("%s not accepting after %d retries: %w", b.addr(), dialRetryCount, err)}
	}
	b.conn = conn

	if err := writeFrame(conn, msgHello, encodeHello(b.sim.TimeStep)); err != nil {
		return &ConnError{Op: "handshake", Err: err}
	}
	typ, body, err := readFrame(conn)
	if err != nil {
		return wrapReadErr("handshake", err)
	}
	if typ != msgHelloAck {
		return protocolErrorf("expected handshake ack, got message type 0x%02x", typ)
	}
	if err := decodeHelloAck(body); err != nil {
		return err
	}
	// initial snapshot follows the ack
	typ, body, err = readFrame(conn)
	if err != nil {
		return wrapReadErr("handshake", err)
	}
	if typ != msgState {
		return protocolErrorf("expected initial state, got message type 0x%02x", typ)
	}
	st, err := decodeState(body)
	if err != nil {
		return err
	}
	b.initial = st
	return nil
}

// wrapReadErr keeps protocol errors as-is and turns anything else into a
// connection failure.
func wrapReadErr(op string, err error) error {
	if _, ok := err.(*ProtocolError); ok {
		return err
	}
	return &ConnError{Op: op, Err: err}
}

// Reset rewinds the simulator to the scenario's initial placement without
// restarting the process, so later runs reuse the launch from the first. The
// fresh initial snapshot is returned and replaces Initial.
func (b *Bridge) Reset() (entity.StepState, error) {
	if b.state != Connected {
		return entity.StepState{}, &ConnError{Op: "reset", Err: fmt.Errorf("bridge is %s", b.state)}
	}
	if err := writeFrame(b.conn, msgReset, nil); err != nil {
		return entity.StepState{}, b.fail(&ConnError{Op: "reset", Err: err})
	}
	typ, body, err := readFrame(b.conn)
	if err != nil {
		return entity.StepState{}, b.fail(wrapReadErr("reset", err))
	}
	if typ != msgState {
		return entity.StepState{}, b.fail(protocolErrorf("expected state after reset, got message type 0x%02x", typ))
	}
	st, err := decodeState(body)
	if err != nil {
		return entity.StepState{}, b.fail(err)
	}
	b.initial = st
	b.prev = st.Vehicles
	return st, nil
}

// Step applies the action set, advances simulated time by exactly one
// time-step and returns the resulting snapshot, with the ids that entered or
// left the network since the previous step. Actions for vehicles absent from
// the previous snapshot are dropped with a warning; they usually already
// exited. A lost connection or a step-timeout expiry is fatal to the run.
func (b *Bridge) Step(actions entity.ActionSet) (entity.StepState, error) {
	if b.state != Connected {
		return entity.StepState{}, &ConnError{Op: "step", Err: fmt.Errorf("bridge is %s", b.state)}
	}
	b.state = Stepping

	applied := make(entity.ActionSet, len(actions))
	for id, a := range actions {
		if _, ok := b.prev[id]; !ok {
			log.Warnf("dropping action for vehicle %s: not in current state", id)
			continue
		}
		applied[id] = a
	}

	if b.sim.StepTimeout > 0 {
		deadline := time.Now().Add(time.Duration(b.sim.StepTimeout * float64(time.Second)))
		if err := b.conn.SetDeadline(deadline); err != nil {
			return entity.StepState{}, b.fail(&ConnError{Op: "step", Err: err})
		}
	}
	if err := writeFrame(b.conn, msgStep, encodeStep(applied)); err != nil {
		return entity.StepState{}, b.fail(&ConnError{Op: "step", Err: err})
	}
	typ, body, err := readFrame(b.conn)
	if err != nil {
		return entity.StepState{}, b.fail(wrapReadErr("step", err))
	}
	if typ != msgState {
		return entity.StepState{}, b.fail(protocolErrorf("expected state, got message type 0x%02x", typ))
	}
	st, err := decodeState(body)
	if err != nil {
		return entity.StepState{}, b.fail(err)
	}

	for id := range st.Vehicles {
		if _, ok := b.prev[id]; !ok {
			st.Entered = append(st.Entered, id)
		}
	}
	for id := range b.prev {
		if _, ok := st.Vehicles[id]; !ok {
			st.Left = append(st.Left, id)
		}
	}
	b.prev = st.Vehicles
	b.state = Connected
	return st, nil
}

// fail records a fatal step failure: the connection is no longer usable.
func (b *Bridge) fail(err error) error {
	b.state = Disconnected
	return err
}

// Terminate releases the connection and the process handle. It is idempotent
// and safe to call from failure paths, including after a partial Start.
func (b *Bridge) Terminate() error {
	if b.conn != nil {
		// best effort: let the simulator shut down cleanly
		_ = b.conn.SetDeadline(time.Now().Add(time.Second))
		_ = writeFrame(b.conn, msgBye, nil)
		_ = b.conn.Close()
		b.conn = nil
	}
	if b.cmd != nil {
		if b.cmd.Process != nil {
			_ = b.cmd.Process.Kill()
		}
		_ = b.cmd.Wait()
		b.cmd = nil
		log.Info("simulator process terminated")
	}
	b.state = Disconnected
	b.prev = nil
	return nil
}
