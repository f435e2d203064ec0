// Package index maintains the four derived lookup structures over the
// stored envelope set: by type, by index field value, by relationship plus
// target, and by reverse reference.
//
// Postings are Roaring bitmaps of dense LocalIDs; a digest/id table maps
// between the two. The index is derived state, never authoritative: it is a
// pure function of the envelopes currently in the store, and rebuilding it
// from the store must reproduce the incrementally maintained structures.
//
// Index is not safe for concurrent use; the envgo facade wraps it together
// with the store under a single read-write lock.
package index

import (
	"github.com/hupe1980/envgo/core"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
)

// Index supports type, field, relationship and reverse-reference lookups.
type Index struct {
	// ids assigns each digest ever indexed a dense LocalID; digests holds
	// the reverse mapping. Ids are never reused, so a digest keeps its id
	// across remove/re-add cycles.
	ids     map[digest.Digest]core.LocalID
	digests []digest.Digest

	// byType: type hash -> envelopes of that type.
	byType map[digest.Digest]*Postings

	// byField: field key -> value key -> envelopes carrying that field.
	// Every value kind is indexed via its stable value key; the
	// string-typed ByField query is a special case of ByFieldValue.
	byField map[string]map[string]*Postings

	// byRel: relationship type -> target -> source envelopes.
	byRel map[string]map[digest.Digest]*Postings

	// refsTo: target -> source envelopes, across all relationship types.
	refsTo map[digest.Digest]*Postings
}

// New creates a new empty index.
func New() *Index {
	return &Index{
		ids:     make(map[digest.Digest]core.LocalID),
		byType:  make(map[digest.Digest]*Postings),
		byField: make(map[string]map[string]*Postings),
		byRel:   make(map[string]map[digest.Digest]*Postings),
		refsTo:  make(map[digest.Digest]*Postings),
	}
}

// Add inserts the envelope stored under d into all four structures. The
// structured fields are taken from env directly, never re-parsed from
// encoded bytes.
func (ix *Index) Add(d digest.Digest, env *envelope.Envelope) {
	id := ix.localID(d)

	typePostings, ok := ix.byType[env.TypeHash]
	if !ok {
		typePostings = NewPostings()
		ix.byType[env.TypeHash] = typePostings
	}
	typePostings.Add(id)

	for key, value := range env.Index {
		vm, ok := ix.byField[key]
		if !ok {
			vm = make(map[string]*Postings)
			ix.byField[key] = vm
		}
		vk := value.Key()
		p, ok := vm[vk]
		if !ok {
			p = NewPostings()
			vm[vk] = p
		}
		p.Add(id)
	}

	for _, rel := range env.Relationships {
		tm, ok := ix.byRel[rel.Type]
		if !ok {
			tm = make(map[digest.Digest]*Postings)
			ix.byRel[rel.Type] = tm
		}
		p, ok := tm[rel.Target]
		if !ok {
			p = NewPostings()
			tm[rel.Target] = p
		}
		p.Add(id)

		refs, ok := ix.refsTo[rel.Target]
		if !ok {
			refs = NewPostings()
			ix.refsTo[rel.Target] = refs
		}
		refs.Add(id)
	}
}

// Remove retracts the envelope stored under d from all four structures.
// The caller must supply the same envelope content that was added; the
// index does not retain envelopes, so a mismatched remove leaves it
// inconsistent by contract, not detected.
func (ix *Index) Remove(d digest.Digest, env *envelope.Envelope) {
	id, ok := ix.ids[d]
	if !ok {
		return
	}

	if p, ok := ix.byType[env.TypeHash]; ok {
		p.Remove(id)
		if p.IsEmpty() {
			delete(ix.byType, env.TypeHash)
		}
	}

	for key, value := range env.Index {
		vm, ok := ix.byField[key]
		if !ok {
			continue
		}
		vk := value.Key()
		if p, ok := vm[vk]; ok {
			p.Remove(id)
			if p.IsEmpty() {
				delete(vm, vk)
			}
		}
		if len(vm) == 0 {
			delete(ix.byField, key)
		}
	}

	for _, rel := range env.Relationships {
		if tm, ok := ix.byRel[rel.Type]; ok {
			if p, ok := tm[rel.Target]; ok {
				p.Remove(id)
				if p.IsEmpty() {
					delete(tm, rel.Target)
				}
			}
			if len(tm) == 0 {
				delete(ix.byRel, rel.Type)
			}
		}
		if p, ok := ix.refsTo[rel.Target]; ok {
			p.Remove(id)
			if p.IsEmpty() {
				delete(ix.refsTo, rel.Target)
			}
		}
	}
}

// ByType returns the digests of all envelopes with the given type hash.
// No ordering is guaranteed.
func (ix *Index) ByType(typeHash digest.Digest) []digest.Digest {
	return ix.resolve(ix.byType[typeHash])
}

// ByField returns the digests of all envelopes whose index field key holds
// the given string value.
func (ix *Index) ByField(key, value string) []digest.Digest {
	return ix.ByFieldValue(key, envelope.String(value))
}

// ByFieldValue is the generalized field lookup over any value kind.
func (ix *Index) ByFieldValue(key string, value envelope.Value) []digest.Digest {
	vm, ok := ix.byField[key]
	if !ok {
		return nil
	}
	return ix.resolve(vm[value.Key()])
}

// ByRelationship returns the digests of all envelopes with a relationship
// of the given type to target: "who has relationship R to X".
func (ix *Index) ByRelationship(relType string, target digest.Digest) []digest.Digest {
	tm, ok := ix.byRel[relType]
	if !ok {
		return nil
	}
	return ix.resolve(tm[target])
}

// ReferencesTo returns the digests of all envelopes with any relationship
// to target: "who references X at all".
func (ix *Index) ReferencesTo(target digest.Digest) []digest.Digest {
	return ix.resolve(ix.refsTo[target])
}

func (ix *Index) localID(d digest.Digest) core.LocalID {
	if id, ok := ix.ids[d]; ok {
		return id
	}
	id := core.LocalID(len(ix.digests))
	ix.ids[d] = id
	ix.digests = append(ix.digests, d)
	return id
}

func (ix *Index) resolve(p *Postings) []digest.Digest {
	if p == nil || p.IsEmpty() {
		return nil
	}
	out := make([]digest.Digest, 0, p.Cardinality())
	for id := range p.Iterator() {
		out = append(out, ix.digests[id])
	}
	return out
}
