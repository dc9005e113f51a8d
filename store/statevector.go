package store

// StateVector gives, per client, 1 + the maximum clock ever observed from
// that client. It only ever advances.
type StateVector struct {
	clocks map[uint32]uint32
}

// NewStateVector returns an empty state vector.
func NewStateVector() *StateVector {
	return &StateVector{clocks: make(map[uint32]uint32)}
}

// Get returns the next free clock for client, or 0 if never seen.
func (sv *StateVector) Get(client uint32) uint32 {
	return sv.clocks[client]
}

// Advance bumps client's next-free-clock to max(current, clock+length).
func (sv *StateVector) Advance(client uint32, clock, length uint32) {
	next := clock + length
	if cur, ok := sv.clocks[client]; !ok || next > cur {
		sv.clocks[client] = next
	}
}

// Snapshot returns a copy of the vector's contents, safe to retain.
func (sv *StateVector) Snapshot() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(sv.clocks))
	for k, v := range sv.clocks {
		out[k] = v
	}
	return out
}

// Clients returns the set of clients with a non-zero clock.
func (sv *StateVector) Clients() []uint32 {
	out := make([]uint32, 0, len(sv.clocks))
	for c := range sv.clocks {
		out = append(out, c)
	}
	return out
}
