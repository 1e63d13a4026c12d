package memory

import "arboria/pkg/domain"

// Write is the net effect of a transaction on one record. Record is nil when
// the record was deleted.
type Write struct {
	Entity domain.EntityType
	ID     string
	Record any
}

// Deleted reports whether the record no longer exists after the transaction.
func (w Write) Deleted() bool { return w.Record == nil }

// NetWrites collapses changes into the final state of every touched record,
// ordered by first touch.
func NetWrites(changes []Change) []Write {
	type key struct {
		entity domain.EntityType
		id     string
	}
	index := make(map[key]int, len(changes))
	out := make([]Write, 0, len(changes))
	for _, ch := range changes {
		var (
			id     string
			record any
		)
		if ch.Action == domain.ActionDelete {
			id = recordID(ch.Before)
		} else {
			id = recordID(ch.After)
			record = ch.After
		}
		if id == "" {
			continue
		}
		k := key{entity: ch.Entity, id: id}
		if i, ok := index[k]; ok {
			out[i].Record = record
			continue
		}
		index[k] = len(out)
		out = append(out, Write{Entity: ch.Entity, ID: id, Record: record})
	}
	return out
}

func recordID(v any) string {
	switch r := v.(type) {
	case Farm:
		return r.ID
	case Tree:
		return r.ID
	case Intervention:
		return r.ID
	default:
		return ""
	}
}
