package iommu

import (
	"github.com/pkg/errors"
)

// DefaultPages are the page sizes supported by OMAP4's IOMMU, largest
// first. The candidate set is configuration, not logic; see Mapper.
var DefaultPages = []uint64{0x1000000, 0x100000, 0x10000, 0x1000}

var ErrMisaligned = errors.New("region not aligned to smallest page size")

// Mapper programs a physically contiguous region into a Domain using
// the largest pages possible.
type Mapper struct {
	Domain Domain
	// Pages lists candidate page sizes in descending order. Nil or
	// empty means DefaultPages.
	Pages []uint64
}

func (m *Mapper) pages() []uint64 {
	if len(m.Pages) == 0 {
		return DefaultPages
	}
	return m.Pages
}

// Map installs the region one page at a time, consuming the largest
// candidate both addresses are aligned to at every step. On failure the
// prefix already installed stays mapped; the returned count tells the
// caller how much to roll back with Unmap.
func (m *Mapper) Map(da, pa, size uint64) (uint64, error) {
	return m.walk(da, pa, size, true)
}

// Unmap releases a region Map installed. It walks the same page size
// sequence, so every unmap call matches a prior map call exactly.
func (m *Mapper) Unmap(da, pa, size uint64) (uint64, error) {
	return m.walk(da, pa, size, false)
}

func (m *Mapper) walk(da, pa, size uint64, mapping bool) (uint64, error) {
	pgs := m.pages()
	// must be aligned at least to the smallest supported page
	min := pgs[len(pgs)-1]
	if size&(min-1) != 0 || (da|pa)&(min-1) != 0 {
		return 0, errors.Wrapf(ErrMisaligned, "size %#x da %#x pa %#x", size, da, pa)
	}
	var done uint64
	for size > 0 {
		pg, err := pick(pgs, da, pa, size)
		if err != nil {
			return done, err
		}
		if mapping {
			err = m.Domain.Map(da, pa, pg)
		} else {
			err = m.Domain.Unmap(da, pg)
		}
		if err != nil {
			return done, errors.Wrapf(err, "page %#x at da %#x", pg, da)
		}
		da += pg
		pa += pg
		size -= pg
		done += pg
	}
	return done, nil
}

// find the max page size with which both pa and da are aligned
func pick(pgs []uint64, da, pa, size uint64) (uint64, error) {
	allBits := da | pa
	for _, pg := range pgs {
		if size >= pg && allBits&(pg-1) == 0 {
			return pg, nil
		}
	}
	return 0, errors.Errorf("no page size fits %#x bytes at da %#x pa %#x", size, da, pa)
}
