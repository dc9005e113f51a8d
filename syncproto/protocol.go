package syncproto

import (
	"fmt"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/store"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/yerr"
	"github.com/Polqt/yrepl/ytype"
)

// Host is the slice of Replica the sync protocol needs. Kept as an
// interface so this package never imports replica; *replica.Replica
// satisfies it.
type Host interface {
	Graph() *item.Graph
	StateVector() *store.StateVector
	DeleteStore() *store.DeleteStore
	Registry() *codec.Registry
	ClientID() uint32
	TransactRemote(fn func(tx *transact.Transaction))
	TypeByID(i id.ID) *ytype.Type
	RegisterType(t *ytype.Type)
}

// Role governs who initiates sync step 1 after receiving step 2
// (spec.md §4.9).
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

// ComputeMissing builds the struct list a peer at peerSV needs from host,
// per spec.md §4.9: "for each client c in the local state, let lower =
// ss[c] ?? 0 ... iterate up to the latest clock emitting each item. Root-
// client items are never shipped."
func ComputeMissing(host Host, peerSV map[uint32]uint32) []codec.Struct {
	var out []codec.Struct
	g := host.Graph()
	for _, client := range host.StateVector().Clients() {
		if client == id.RootClient {
			continue
		}
		lower := peerSV[client]
		local := host.StateVector().Get(client)
		if lower >= local {
			continue
		}
		// Split the prefix at lower if it falls in the interior of an item.
		if e, ok := g.Store.GetItem(id.New(client, lower)); ok {
			it := e.(*item.Item)
			if it.ID().Clock != lower {
				_, right := g.SplitAt(it, lower-it.ID().Clock)
				it = right
			}
		}
		g.Store.Iterate(client, lower, local, func(e store.Entry) bool {
			if s, ok := e.(codec.Struct); ok {
				out = append(out, s)
			}
			return true
		})
	}
	return out
}

// ApplyStructs integrates a decoded struct list into host inside one
// remote transaction, parking anything with unmet dependencies in q and
// draining q as dependencies are satisfied (spec.md §4.9).
func ApplyStructs(host Host, structs []codec.Struct, q *DepQueue) error {
	var firstErr error
	host.TransactRemote(func(tx *transact.Transaction) {
		queue := append([]codec.Struct(nil), structs...)
		for len(queue) > 0 {
			s := queue[0]
			queue = queue[1:]
			ready, err := applyOne(host, tx, s, q)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			queue = append(queue, ready...)
		}
	})
	return firstErr
}

func applyOne(host Host, tx *transact.Transaction, s codec.Struct, q *DepQueue) ([]codec.Struct, error) {
	switch v := s.(type) {
	case *item.Item:
		return applyItem(host, tx, v, q)
	case *item.Delete:
		host.DeleteStore().Mark(v.Target, v.Length, false)
		if e, ok := host.Graph().Store.GetItem(v.Target); ok {
			if it, ok := e.(*item.Item); ok {
				it.Deleted = true
				host.Graph().Store.Put(it)
				tx.MarkDeleted(it.ID())
			}
		}
		return nil, nil
	case *item.GC:
		host.Graph().Store.Put(v)
		host.StateVector().Advance(v.ID().Client, v.ID().Clock, v.Len())
		return q.Satisfy(v.ID().Client, v.ID().Clock+v.Len()-1), nil
	default:
		return nil, fmt.Errorf("%w: unhandled struct type", yerr.ErrDecode)
	}
}

func applyItem(host Host, tx *transact.Transaction, it *item.Item, q *DepQueue) ([]codec.Struct, error) {
	local := host.StateVector().Get(it.ID().Client)
	if it.ID().Clock < local {
		return nil, nil // already applied
	}

	deps := Dependencies(it.ID(), it.Origin, it.RightOrigin, it.ParentID, local)
	var missing []clientClock
	for _, d := range deps {
		if !dependencyMet(host, d) {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		q.Park(it, missing)
		return nil, nil
	}

	parent, err := resolveParent(host, tx, it)
	if err != nil {
		return nil, err
	}

	if it.Origin != nil {
		if cleaned := host.Graph().GetCleanEnd(*it.Origin); cleaned != nil {
			lid := cleaned.ID()
			it.Left = &lid
		}
	}

	host.Graph().Integrate(parent, it)
	host.StateVector().Advance(it.ID().Client, it.ID().Clock, it.Len())
	tx.MarkNew(it.ID())

	if it.ParentID != nil {
		tx.MarkChanged(*it.ParentID, keyOrEmpty(it.ParentKey), false)
	}

	return q.Satisfy(it.ID().Client, it.ID().Clock+it.Len()-1), nil
}

func keyOrEmpty(k *string) string {
	if k == nil {
		return ""
	}
	return *k
}

func dependencyMet(host Host, d clientClock) bool {
	if e, ok := host.Graph().Store.GetItem(id.New(d.Client, d.Clock)); ok {
		if it, ok := e.(*item.Item); ok {
			return it.ID().Clock+it.Len() > d.Clock
		}
		return true
	}
	return false
}

// resolveParent looks up (or, for a first-seen root type, materializes)
// the ytype.Type that owns it.
func resolveParent(host Host, tx *transact.Transaction, it *item.Item) (ytype.ParentView, error) {
	if it.ParentID == nil {
		// Top-level: it.ID() is itself a root ID naming a Type.
		sc, ok := it.Content.(*item.SubtypeContent)
		if !ok {
			return nil, fmt.Errorf("%w: root item without subtype content", yerr.ErrDecode)
		}
		if t := host.TypeByID(it.ID()); t != nil {
			return t, nil
		}
		t := materializeType(host, it.ID(), sc.TypeTag, sc.NodeName)
		tx.MarkNew(it.ID())
		return t, nil
	}
	if t := host.TypeByID(*it.ParentID); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: unknown parent type", yerr.ErrDecode)
}

func materializeType(host Host, typeID id.ID, tag uint8, nodeName string) *ytype.Type {
	doc, ok := host.(ytype.Doc)
	if !ok {
		panic("syncproto: Host must also implement ytype.Doc")
	}
	var t *ytype.Type
	switch tag {
	case codec.TagYArray:
		t = ytype.NewArray(doc, typeID).Type
	case codec.TagYMap:
		t = ytype.NewMap(doc, typeID).Type
	case codec.TagYText, codec.TagYXmlText:
		t = ytype.NewText(doc, typeID).Type
		t.Tag = tag
	case codec.TagYXmlFragment:
		t = ytype.NewXMLFragment(doc, typeID).Type
	case codec.TagYXmlElement, codec.TagYXmlHook:
		t = ytype.NewXMLElement(doc, typeID, nodeName, tag == codec.TagYXmlHook).Type
	default:
		panic("syncproto: unknown subtype tag")
	}
	return t
}
