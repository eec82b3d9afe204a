package models

import (
	"github.com/pkg/errors"
)

var (
	ErrOutOfRange     = errors.New("device address out of physical range")
	ErrInvalidAddress = errors.New("device address not covered by memory map")
)

// MemEntry is one device-to-physical mapping of a remote processor's
// memory map. Entries must not overlap in device address space.
type MemEntry struct {
	DA   uint64
	PA   uint64
	Size uint64
}

func (e *MemEntry) Contains(da uint64) bool {
	return da >= e.DA && da < e.DA+e.Size
}

// MemMap describes how a remote processor sees host memory. A nil map
// means the device is not behind an IOMMU and addresses it emits are
// physical already.
type MemMap []MemEntry

// AddrSpace resolves device addresses to physical addresses for one
// remote processor.
type AddrSpace struct {
	Map MemMap
	// addresses past mask don't fit in the host's physical space
	// calculated by NewAddrSpace using ^uint64(0) >> (64 - bits)
	mask uint64
}

// NewAddrSpace wraps m for translation. physBits is the width of the
// host physical address space, used to bound direct device access when
// no memory map is present.
func NewAddrSpace(m MemMap, physBits uint) *AddrSpace {
	if physBits == 0 || physBits > 64 {
		physBits = 32
	}
	return &AddrSpace{
		Map:  m,
		mask: ^uint64(0) >> (64 - physBits),
	}
}

// Translate converts a device address to a physical address. Tables are
// small (single-digit entries), so the scan is linear; first match wins.
func (s *AddrSpace) Translate(da uint64) (uint64, error) {
	if s.Map == nil {
		// no IOMMU, the device accesses physical memory directly
		if da > s.mask {
			return 0, errors.Wrapf(ErrOutOfRange, "da %#x", da)
		}
		return da, nil
	}
	for i := range s.Map {
		if e := &s.Map[i]; e.Contains(da) {
			return e.PA + (da - e.DA), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidAddress, "da %#x", da)
}
