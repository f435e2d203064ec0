package index

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/envgo/core"
)

// Postings is a set of LocalIDs backed by a 32-bit Roaring Bitmap.
// It wraps the official roaring implementation.
type Postings struct {
	rb *roaring.Bitmap
}

// NewPostings creates a new empty posting set.
func NewPostings() *Postings {
	return &Postings{
		rb: roaring.New(),
	}
}

// Add adds a LocalID to the set.
func (p *Postings) Add(id core.LocalID) {
	p.rb.Add(uint32(id))
}

// Remove removes a LocalID from the set.
func (p *Postings) Remove(id core.LocalID) {
	p.rb.Remove(uint32(id))
}

// Contains checks if a LocalID is in the set.
func (p *Postings) Contains(id core.LocalID) bool {
	return p.rb.Contains(uint32(id))
}

// IsEmpty returns true if the set is empty.
func (p *Postings) IsEmpty() bool {
	return p.rb.IsEmpty()
}

// Cardinality returns the number of elements in the set.
func (p *Postings) Cardinality() uint64 {
	return p.rb.GetCardinality()
}

// Clone returns a deep copy of the set.
func (p *Postings) Clone() *Postings {
	return &Postings{
		rb: p.rb.Clone(),
	}
}

// Iterator returns an iterator over the set.
func (p *Postings) Iterator() iter.Seq[core.LocalID] {
	return func(yield func(core.LocalID) bool) {
		it := p.rb.Iterator()
		for it.HasNext() {
			if !yield(core.LocalID(it.Next())) {
				return
			}
		}
	}
}
