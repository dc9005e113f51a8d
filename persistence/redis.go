// Package persistence implements the Redis-backed adapter that snapshots a
// room's full state (STRUCTS | DELETESET, spec.md §6 "Persisted state
// layout") and appends the per-transaction incremental updates.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/store"
)

// ErrNoSnapshot is returned by LoadSnapshot when a room has never been
// persisted.
var ErrNoSnapshot = errors.New("persistence: no snapshot for room")

func snapshotKey(room string) string { return "yrepl:room:" + room + ":snapshot" }
func updatesKey(room string) string  { return "yrepl:room:" + room + ":updates" }

// RedisStore wraps go-redis/v9 with the encode/decode logic for the
// engine's two persisted payload shapes.
type RedisStore struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisStore dials addr/db with the same connection-pool shape the rest
// of the corpus uses for its Redis client.
func NewRedisStore(addr string, db int, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("redis_store")
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("connection failed", zap.Error(err))
	} else {
		log.Info("connection established", zap.String("addr", addr))
	}

	return &RedisStore{client: client, log: log}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

// SaveSnapshot overwrites room's full persisted state: every live struct
// plus the complete delete set (spec.md §6).
func (s *RedisStore) SaveSnapshot(ctx context.Context, room string, structs []codec.Struct, deletes map[uint32][]store.DeleteRun) error {
	w := codec.NewWriter()
	encodeStructs(w, structs)
	encodeDeleteSet(w, deletes)

	if err := s.client.Set(ctx, snapshotKey(room), w.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("persistence: save snapshot %q: %w", room, err)
	}
	return nil
}

// LoadSnapshot fetches room's persisted STRUCTS|DELETESET body.
func (s *RedisStore) LoadSnapshot(ctx context.Context, room string, reg *codec.Registry) ([]codec.Struct, map[uint32][]store.DeleteRun, error) {
	raw, err := s.client.Get(ctx, snapshotKey(room)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrNoSnapshot
		}
		return nil, nil, fmt.Errorf("persistence: load snapshot %q: %w", room, err)
	}

	r := codec.NewReader(raw)
	structs, err := decodeStructs(r, reg)
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: decode snapshot %q: %w", room, err)
	}
	deletes, err := decodeDeleteSet(r)
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: decode snapshot %q deleteset: %w", room, err)
	}
	return structs, deletes, nil
}

// AppendUpdate pushes one transaction's encoded struct list (spec.md §6:
// incremental updates are "STRUCTS" only, no delete set) onto room's
// update log, to be replayed in order after LoadSnapshot.
func (s *RedisStore) AppendUpdate(ctx context.Context, room string, structs []codec.Struct) error {
	if len(structs) == 0 {
		return nil
	}
	w := codec.NewWriter()
	encodeStructs(w, structs)
	if err := s.client.RPush(ctx, updatesKey(room), w.Bytes()).Err(); err != nil {
		return fmt.Errorf("persistence: append update %q: %w", room, err)
	}
	return nil
}

// LoadUpdates returns every update appended since the last snapshot, in
// application order.
func (s *RedisStore) LoadUpdates(ctx context.Context, room string, reg *codec.Registry) ([][]codec.Struct, error) {
	raws, err := s.client.LRange(ctx, updatesKey(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: load updates %q: %w", room, err)
	}
	out := make([][]codec.Struct, 0, len(raws))
	for _, raw := range raws {
		r := codec.NewReader([]byte(raw))
		structs, err := decodeStructs(r, reg)
		if err != nil {
			return nil, fmt.Errorf("persistence: decode update %q: %w", room, err)
		}
		out = append(out, structs)
	}
	return out, nil
}

// CompactUpdates replaces the update log with a fresh snapshot, called
// after folding the updates into a new base state.
func (s *RedisStore) CompactUpdates(ctx context.Context, room string, structs []codec.Struct, deletes map[uint32][]store.DeleteRun) error {
	pipe := s.client.TxPipeline()
	w := codec.NewWriter()
	encodeStructs(w, structs)
	encodeDeleteSet(w, deletes)
	pipe.Set(ctx, snapshotKey(room), w.Bytes(), 0)
	pipe.Del(ctx, updatesKey(room))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persistence: compact %q: %w", room, err)
	}
	return nil
}

func encodeStructs(w *codec.Writer, structs []codec.Struct) {
	w.WriteUvarint(uint64(len(structs)))
	for _, s := range structs {
		codec.EncodeOne(w, s)
	}
}

func decodeStructs(r *codec.Reader, reg *codec.Registry) ([]codec.Struct, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	out := make([]codec.Struct, n)
	for i := range out {
		s, err := reg.DecodeOne(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func encodeDeleteSet(w *codec.Writer, ds map[uint32][]store.DeleteRun) {
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

func decodeDeleteSet(r *codec.Reader) (map[uint32][]store.DeleteRun, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ds := make(map[uint32][]store.DeleteRun, n)
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
