package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer identifiers, reusing released slots first.
// The software backend uses one pool as its bindless descriptor heap, so an identifier
// doubles as the index a shader uses to look the resource up.
type IdentifierPool struct {
	mutex  sync.Mutex
	owners []interface{}
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, capacity),
	}
}

func (p *IdentifierPool) AquireNewID(owner interface{}) uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	length := uint32(len(p.owners))
	for i := uint32(0); i < length; i++ {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return i
		}
	}

	// If here, no existing free slots. Need a new id, so push one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IdentifierPool) ReleaseID(id uint32) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	length := uint32(len(p.owners))
	if id >= length {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, length)
	}

	// Just zero out the entry, making it available for use.
	p.owners[id] = nil
	return nil
}

// Owner returns whatever was registered under id, or nil for free and unknown ids.
func (p *IdentifierPool) Owner(id uint32) interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if id >= uint32(len(p.owners)) {
		return nil
	}
	return p.owners[id]
}

// Count is the number of identifiers currently held.
func (p *IdentifierPool) Count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	count := 0
	for _, o := range p.owners {
		if o != nil {
			count++
		}
	}
	return count
}
