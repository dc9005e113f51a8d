// Package session manages connected WebSocket clients and sync-protocol
// message routing (spec.md §2 "organized around... a Hub owning one
// Replica per collaborative room").
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/persistence"
	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/syncproto"
	"github.com/Polqt/yrepl/yerr"
)

// Sender is implemented by the WebSocket transport layer so Client can
// push messages without depending on the transport package.
type Sender interface {
	SendBinary(b []byte) error
	Close() error
	RemoteAddr() string
}

// Client is one connected participant in a room.
type Client struct {
	ID     string // uuid, assigned by the server (spec.md §10 IDs)
	sender Sender
	room   *Room
}

// Push writes an already-encoded envelope to this client.
func (c *Client) Push(kind syncproto.Kind, body []byte) error {
	return c.sender.SendBinary(syncproto.EncodeEnvelope(c.room.ID, kind, body))
}

// Room holds the live replica and connected clients for one collaborative
// document.
type Room struct {
	mu sync.RWMutex

	ID      string
	replica *replica.Replica
	clients map[string]*Client
	depQ    *syncproto.DepQueue

	log     *zap.Logger
	persist *persistence.RedisStore
}

func newRoom(id string, clientID uint32, log *zap.Logger, persist *persistence.RedisStore) *Room {
	return &Room{
		ID:      id,
		replica: replica.New(clientID, log.Named("replica").With(zap.String("room", id))),
		clients: make(map[string]*Client),
		depQ:    syncproto.NewDepQueue(),
		log:     log.Named("room").With(zap.String("room", id)),
		persist: persist,
	}
}

// Replica exposes the room's CRDT replica (used by defined shared types
// and by the transport's snapshot endpoint).
func (r *Room) Replica() *replica.Replica { return r.replica }

// broadcast fans the envelope out to every client but exclude concurrently,
// since a slow or blocked peer must never delay delivery to the rest of
// the room.
func (r *Room) broadcast(kind syncproto.Kind, body []byte, exclude string) {
	env := syncproto.EncodeEnvelope(r.ID, kind, body)
	r.mu.RLock()
	targets := make(map[string]*Client, len(r.clients))
	for id, c := range r.clients {
		if id != exclude {
			targets[id] = c
		}
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for id, c := range targets {
		id, c := id, c
		g.Go(func() error {
			if err := c.sender.SendBinary(env); err != nil {
				r.log.Warn("broadcast failed", zap.String("client", id), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}

// Hub is the central registry of all active rooms (spec.md §2 Hub).
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	log       *zap.Logger
	persist   *persistence.RedisStore
	nextLocal uint32 // monotonically assigns per-client numeric IDs server-side
}

// NewHub creates a new Hub. persist may be nil to disable persistence.
func NewHub(log *zap.Logger, persist *persistence.RedisStore) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{rooms: make(map[string]*Room), log: log, persist: persist}
}

// Run periodically sweeps every room's replica for garbage collection
// (spec.md §4.7) every interval, until stop is closed.
func (h *Hub) Run(stop <-chan struct{}, interval time.Duration, sweep func(*replica.Replica) int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		h.mu.RLock()
		rooms := make([]*Room, 0, len(h.rooms))
		for _, r := range h.rooms {
			rooms = append(rooms, r)
		}
		h.mu.RUnlock()

		var g errgroup.Group
		for _, r := range rooms {
			r := r
			g.Go(func() error {
				if n := sweep(r.replica); n > 0 {
					h.log.Debug("gc sweep", zap.String("room", r.ID), zap.Int("collected", n))
				}
				return nil
			})
		}
		g.Wait()
	}
}

// GetOrCreateRoom returns the room with the given id, creating it (and,
// if persist is configured, restoring its snapshot and replayed updates)
// if needed.
func (h *Hub) GetOrCreateRoom(id string) *Room {
	h.mu.Lock()
	if r, ok := h.rooms[id]; ok {
		h.mu.Unlock()
		return r
	}
	h.nextLocal++
	serverClientID := h.nextLocal
	r := newRoom(id, serverClientID, h.log, h.persist)
	h.rooms[id] = r
	h.mu.Unlock()

	if h.persist != nil {
		h.restore(r)
	}
	return r
}

// Join registers a client with a room and sends the opening sync step 1
// (the room's current state vector), per spec.md §4.9.
func (h *Hub) Join(roomID string, sender Sender) *Client {
	room := h.GetOrCreateRoom(roomID)
	c := &Client{ID: uuid.NewString(), sender: sender, room: room}

	room.mu.Lock()
	room.clients[c.ID] = c
	room.mu.Unlock()

	step1 := syncproto.SyncStep1{ProtocolVersion: syncproto.ProtocolVersion, StateVector: room.replica.StateVector().Snapshot()}
	if err := c.Push(syncproto.KindSyncStep1, step1.Encode()); err != nil {
		room.log.Warn("failed to send opening sync step 1", zap.Error(err))
	}
	return c
}

// DestroyRoom disconnects every client in room and discards its replica
// state (spec.md §9 open question 2: a protocol mismatch destroys the
// room rather than limping on with a partially-understood peer).
func (h *Hub) DestroyRoom(roomID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if ok {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		clients = append(clients, c)
	}
	room.mu.Unlock()

	for _, c := range clients {
		c.sender.Close()
	}
	room.log.Warn("room destroyed")
}

// Leave removes a client from its room.
func (h *Hub) Leave(c *Client) {
	room := c.room
	room.mu.Lock()
	delete(room.clients, c.ID)
	room.log.Info("client left", zap.String("client", c.ID))
	room.mu.Unlock()
}

// Dispatch decodes and applies one incoming envelope from c, per the
// sync protocol state machine (spec.md §4.9):
//   - sync step 1: reply with sync step 2 carrying whatever c is missing.
//   - sync step 2 / update: integrate the carried structs, broadcast an
//     update to every other client in the room, and persist.
func (h *Hub) Dispatch(c *Client, env syncproto.Envelope) error {
	room := c.room
	reg := room.replica.Registry()

	switch env.Kind {
	case syncproto.KindSyncStep1:
		step1, err := syncproto.DecodeSyncStep1(env.Body)
		if err != nil {
			return fmt.Errorf("session: decode sync step 1: %w", err)
		}
		if step1.ProtocolVersion != syncproto.ProtocolVersion {
			return fmt.Errorf("session: client %s on protocol %d, room on %d: %w",
				c.ID, step1.ProtocolVersion, syncproto.ProtocolVersion, yerr.ErrProtocolMismatch)
		}
		structs := syncproto.ComputeMissing(room.replica, step1.StateVector)
		step2 := syncproto.SyncStep2{Structs: structs, Deletes: room.replica.DeleteRunsSnapshot()}
		return c.Push(syncproto.KindSyncStep2, step2.Encode())

	case syncproto.KindSyncStep2:
		step2, err := syncproto.DecodeSyncStep2(reg, env.Body)
		if err != nil {
			return fmt.Errorf("session: decode sync step 2: %w", err)
		}
		if err := syncproto.ApplyStructs(room.replica, step2.Structs, room.depQ); err != nil {
			room.log.Warn("apply sync step 2 structs", zap.Error(err))
		}
		for client, runs := range step2.Deletes {
			room.replica.DeleteStore().Merge(client, runs)
		}
		h.afterApply(room, c, step2.Structs)
		return nil

	case syncproto.KindUpdate:
		update, err := syncproto.DecodeUpdate(reg, env.Body)
		if err != nil {
			return fmt.Errorf("session: decode update: %w", err)
		}
		if err := syncproto.ApplyStructs(room.replica, update.Structs, room.depQ); err != nil {
			room.log.Warn("apply update structs", zap.Error(err))
		}
		h.afterApply(room, c, update.Structs)
		return nil

	default:
		return fmt.Errorf("session: unknown envelope kind %q", env.Kind)
	}
}

func (h *Hub) afterApply(room *Room, from *Client, structs []codec.Struct) {
	if len(structs) == 0 {
		return
	}
	update := syncproto.Update{Structs: structs}
	room.broadcast(syncproto.KindUpdate, update.Encode(), from.ID)

	if h.persist != nil {
		if err := h.persist.AppendUpdate(context.Background(), room.ID, structs); err != nil {
			room.log.Warn("persist update", zap.Error(err))
		}
	}
}

func (h *Hub) restore(r *Room) {
	structs, deletes, err := h.persist.LoadSnapshot(context.Background(), r.ID, r.replica.Registry())
	if err != nil {
		if err != persistence.ErrNoSnapshot {
			r.log.Warn("load snapshot", zap.Error(err))
		}
		return
	}
	if err := syncproto.ApplyStructs(r.replica, structs, r.depQ); err != nil {
		r.log.Warn("apply snapshot structs", zap.Error(err))
	}
	for client, runs := range deletes {
		r.replica.DeleteStore().Merge(client, runs)
	}

	updates, err := h.persist.LoadUpdates(context.Background(), r.ID, r.replica.Registry())
	if err != nil {
		r.log.Warn("load updates", zap.Error(err))
		return
	}
	for _, u := range updates {
		if err := syncproto.ApplyStructs(r.replica, u, r.depQ); err != nil {
			r.log.Warn("apply replayed update", zap.Error(err))
		}
	}
}
