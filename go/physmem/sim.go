package physmem

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/models"
)

// Sim models host physical memory as a handful of RAM banks. Banks are
// registered up front with Add; MapPhys hands out windows aliasing the
// bank storage, so overlapping maps observe each other's writes the way
// real shared memory does.
type Sim struct {
	mu    sync.Mutex
	banks []*bank
}

type bank struct {
	pa   uint64
	data []byte
}

func (b *bank) contains(pa, size uint64) bool {
	return pa >= b.pa && pa+size <= b.pa+uint64(len(b.data))
}

func NewSim() *Sim {
	return &Sim{}
}

// Add registers size bytes of zeroed RAM at pa.
func (s *Sim) Add(pa, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.banks {
		if pa < b.pa+uint64(len(b.data)) && b.pa < pa+size {
			return errors.Errorf("bank %#x+%#x overlaps bank at %#x", pa, size, b.pa)
		}
	}
	s.banks = append(s.banks, &bank{pa: pa, data: make([]byte, size)})
	return nil
}

// MapPhys returns a window over [pa, pa+size). The range must lie
// inside a single bank.
func (s *Sim) MapPhys(pa, size uint64) (models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.banks {
		if b.contains(pa, size) {
			off := pa - b.pa
			return &simRegion{pa: pa, data: b.data[off : off+size]}, nil
		}
	}
	return nil, errors.Errorf("pa %#x+%#x is not backed", pa, size)
}

type simRegion struct {
	pa   uint64
	data []byte
}

func (r *simRegion) Bytes() []byte { return r.data }
func (r *simRegion) Addr() uint64  { return r.pa }
func (r *simRegion) Size() uint64  { return uint64(len(r.data)) }

func (r *simRegion) Unmap() error {
	r.data = nil
	return nil
}
