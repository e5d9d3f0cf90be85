package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/slices"

	"github.com/mixedtraffic/loopsim/entity"
)

// Control protocol framing. The simulator owns the protocol; this side only
// encodes one request and decodes one response per simulated time-step.
//
//	frame   := length(uint32) payload
//	payload := type(uint8) body
//
// All integers are big endian, all floats IEEE 754 binary64. Strings are
// length-prefixed with a uint16.
const (
	protocolVersion uint16 = 1

	msgHello    byte = 0x01 // client: version, time-step
	msgHelloAck byte = 0x02 // server: version
	msgStep     byte = 0x10 // client: per-vehicle accel + lane command
	msgState    byte = 0x11 // server: per-vehicle lane/pos/speed snapshot
	msgReset    byte = 0x20 // client: rewind to the initial placement
	msgBye      byte = 0xFF // client: teardown

	// maxFrameSize bounds a payload; anything larger is a protocol mismatch,
	// not a huge state.
	maxFrameSize = 16 << 20
)

// ProtocolError reports malformed or out-of-order data from the simulator.
// It signals a bug or version mismatch and is never recovered from.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "bridge: protocol: " + e.Reason
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

func writeFrame(w io.Writer, typ byte, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(5 + len(body))
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(1+len(body)))
	buf.Write(length[:])
	buf.WriteByte(typ)
	buf.Write(body)
	_, err := w.Write(buf.Bytes())
	return err
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n == 0 || n > maxFrameSize {
		return 0, nil, protocolErrorf("frame length %d out of range", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return payload[0], payload[1:], nil
}

func putString(buf *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func putFloat64(buf *bytes.Buffer, f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	buf.Write(b[:])
}

func encodeHello(timeStep float64) []byte {
	var buf bytes.Buffer
	var v [2]byte
	binary.BigEndian.PutUint16(v[:], protocolVersion)
	buf.Write(v[:])
	putFloat64(&buf, timeStep)
	return buf.Bytes()
}

func decodeHelloAck(body []byte) error {
	if len(body) != 2 {
		return protocolErrorf("handshake ack has %d bytes, want 2", len(body))
	}
	if v := binary.BigEndian.Uint16(body); v != protocolVersion {
		return protocolErrorf("simulator speaks protocol version %d, want %d", v, protocolVersion)
	}
	return nil
}

// encodeStep serializes an action set in deterministic (sorted-id) order.
func encodeStep(actions entity.ActionSet) []byte {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var buf bytes.Buffer
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(ids)))
	buf.Write(count[:])
	for _, id := range ids {
		a := actions[id]
		putString(&buf, id)
		putFloat64(&buf, a.Accel)
		buf.WriteByte(byte(a.LaneChange))
	}
	return buf.Bytes()
}

type stateReader struct {
	body []byte
	off  int
}

func (r *stateReader) remaining() int { return len(r.body) - r.off }

func (r *stateReader) uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, protocolErrorf("state frame truncated at offset %d", r.off)
	}
	v := binary.BigEndian.Uint32(r.body[r.off:])
	r.off += 4
	return v, nil
}

func (r *stateReader) float64() (float64, error) {
	if r.remaining() < 8 {
		return 0, protocolErrorf("state frame truncated at offset %d", r.off)
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.body[r.off:]))
	r.off += 8
	return v, nil
}

func (r *stateReader) string() (string, error) {
	if r.remaining() < 2 {
		return "", protocolErrorf("state frame truncated at offset %d", r.off)
	}
	n := int(binary.BigEndian.Uint16(r.body[r.off:]))
	r.off += 2
	if r.remaining() < n {
		return "", protocolErrorf("state frame truncated at offset %d", r.off)
	}
	s := string(r.body[r.off : r.off+n])
	r.off += n
	return s, nil
}

// decodeState parses a state snapshot. Entered/Left are filled in later by
// the bridge, which diffs against the previous snapshot.
func decodeState(body []byte) (entity.StepState, error) {
	r := &stateReader{body: body}
	t, err := r.float64()
	if err != nil {
		return entity.StepState{}, err
	}
	count, err := r.uint32()
	if err != nil {
		return entity.StepState{}, err
	}
	st := entity.StepState{Time: t, Vehicles: make(map[string]entity.VehicleState, count)}
	for i := uint32(0); i < count; i++ {
		id, err := r.string()
		if err != nil {
			return entity.StepState{}, err
		}
		lane, err := r.uint32()
		if err != nil {
			return entity.StepState{}, err
		}
		pos, err := r.float64()
		if err != nil {
			return entity.StepState{}, err
		}
		speed, err := r.float64()
		if err != nil {
			return entity.StepState{}, err
		}
		if _, dup := st.Vehicles[id]; dup {
			return entity.StepState{}, protocolErrorf("duplicate vehicle id %q in state frame", id)
		}
		st.Vehicles[id] = entity.VehicleState{
			ID:    id,
			Lane:  int(lane),
			Pos:   pos,
			Speed: speed,
		}
	}
	if r.remaining() != 0 {
		return entity.StepState{}, protocolErrorf("%d trailing bytes in state frame", r.remaining())
	}
	return st, nil
}
