// Package syncproto implements the synchronization protocol (spec.md
// §4.9, §6 wire format): state-vector exchange, missing-operation
// shipping, dependency queueing for out-of-order arrivals, and delete-set
// reconciliation.
package syncproto

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/store"
)

// Kind names one of the three message kinds (spec.md §6).
type Kind string

const (
	KindSyncStep1 Kind = "sync step 1"
	KindSyncStep2 Kind = "sync step 2"
	KindUpdate    Kind = "update"
)

// ProtocolVersion is bumped whenever the wire format changes in a way
// that breaks compatibility (spec.md §7 ProtocolMismatch).
const ProtocolVersion = 1

// Envelope is the outer message wrapper: "varString room | varString kind
// | body" (spec.md §6).
type Envelope struct {
	Room string
	Kind Kind
	Body []byte
}

// EncodeEnvelope writes room, kind and a pre-encoded body.
func EncodeEnvelope(room string, kind Kind, body []byte) []byte {
	w := codec.NewWriter()
	w.WriteString(room)
	w.WriteString(string(kind))
	w.WriteBytes(body)
	return w.Bytes()
}

// DecodeEnvelope splits a wire message into room, kind and remaining body.
func DecodeEnvelope(b []byte) (Envelope, error) {
	r := codec.NewReader(b)
	room, err := r.ReadString()
	if err != nil {
		return Envelope{}, err
	}
	kind, err := r.ReadString()
	if err != nil {
		return Envelope{}, err
	}
	rest := b[len(b)-r.Remaining():]
	return Envelope{Room: room, Kind: Kind(kind), Body: rest}, nil
}

// SyncStep1 is the initiator's opening message: auth, protocol version,
// and the initiator's state vector.
type SyncStep1 struct {
	Auth            string
	ProtocolVersion uint64
	StateVector     map[uint32]uint32
}

func (m SyncStep1) Encode() []byte {
	w := codec.NewWriter()
	w.WriteString(m.Auth)
	w.WriteUvarint(m.ProtocolVersion)
	w.WriteUvarint(uint64(len(m.StateVector)))
	for client, clock := range m.StateVector {
		w.WriteUvarint(uint64(client))
		w.WriteUvarint(uint64(clock))
	}
	return w.Bytes()
}

func DecodeSyncStep1(b []byte) (SyncStep1, error) {
	r := codec.NewReader(b)
	auth, err := r.ReadString()
	if err != nil {
		return SyncStep1{}, err
	}
	ver, err := r.ReadUvarint()
	if err != nil {
		return SyncStep1{}, err
	}
	n, err := r.ReadUvarint()
	if err != nil {
		return SyncStep1{}, err
	}
	sv := make(map[uint32]uint32, n)
	for i := uint64(0); i < n; i++ {
		c, err := r.ReadUvarint()
		if err != nil {
			return SyncStep1{}, err
		}
		clk, err := r.ReadUvarint()
		if err != nil {
			return SyncStep1{}, err
		}
		sv[uint32(c)] = uint32(clk)
	}
	return SyncStep1{Auth: auth, ProtocolVersion: ver, StateVector: sv}, nil
}

// DeleteSetWire is the wire form of the delete store: per-client runs.
type DeleteSetWire map[uint32][]store.DeleteRun

func encodeDeleteSet(w *codec.Writer, ds DeleteSetWire) {
	w.WriteUvarint(uint64(len(ds)))
	for client, runs := range ds {
		w.WriteUvarint(uint64(client))
		w.WriteUvarint(uint64(len(runs)))
		for _, r := range runs {
			w.WriteUvarint(uint64(r.Clock))
			w.WriteUvarint(uint64(r.Len))
			if r.GC {
				w.WriteByte(1)
			} else {
				w.WriteByte(0)
			}
		}
	}
}

func decodeDeleteSet(r *codec.Reader) (DeleteSetWire, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ds := make(DeleteSetWire, n)
	for i := uint64(0); i < n; i++ {
		client, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		m, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		runs := make([]store.DeleteRun, m)
		for j := range runs {
			clock, err := r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			length, err := r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			gcFlag, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			runs[j] = store.DeleteRun{Clock: uint32(clock), Len: uint32(length), GC: gcFlag != 0}
		}
		ds[uint32(client)] = runs
	}
	return ds, nil
}

// SyncStep2 carries the peer's missing structs plus its complete delete
// set (spec.md §4.9).
type SyncStep2 struct {
	Auth    string
	Structs []codec.Struct
	Deletes DeleteSetWire
}

func (m SyncStep2) Encode() []byte {
	w := codec.NewWriter()
	w.WriteString(m.Auth)
	w.WriteUvarint(uint64(len(m.Structs)))
	for _, s := range m.Structs {
		codec.EncodeOne(w, s)
	}
	encodeDeleteSet(w, m.Deletes)
	return w.Bytes()
}

func DecodeSyncStep2(reg *codec.Registry, b []byte) (SyncStep2, error) {
	r := codec.NewReader(b)
	auth, err := r.ReadString()
	if err != nil {
		return SyncStep2{}, err
	}
	n, err := r.ReadUvarint()
	if err != nil {
		return SyncStep2{}, err
	}
	structs := make([]codec.Struct, n)
	for i := range structs {
		s, err := reg.DecodeOne(r)
		if err != nil {
			return SyncStep2{}, err
		}
		structs[i] = s
	}
	ds, err := decodeDeleteSet(r)
	if err != nil {
		return SyncStep2{}, err
	}
	return SyncStep2{Auth: auth, Structs: structs, Deletes: ds}, nil
}

// Update is an unsolicited list of structs broadcast as a replica applies
// local mutations.
type Update struct {
	Structs []codec.Struct
}

func (m Update) Encode() []byte {
	w := codec.NewWriter()
	w.WriteUvarint(uint64(len(m.Structs)))
	for _, s := range m.Structs {
		codec.EncodeOne(w, s)
	}
	return w.Bytes()
}

func DecodeUpdate(reg *codec.Registry, b []byte) (Update, error) {
	r := codec.NewReader(b)
	n, err := r.ReadUvarint()
	if err != nil {
		return Update{}, err
	}
	structs := make([]codec.Struct, n)
	for i := range structs {
		s, err := reg.DecodeOne(r)
		if err != nil {
			return Update{}, err
		}
		structs[i] = s
	}
	return Update{Structs: structs}, nil
}
