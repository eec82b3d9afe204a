package iommu

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type simPage struct {
	da, pa, size uint64
}

type simPages []simPage

func (p simPages) Len() int           { return len(p) }
func (p simPages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p simPages) Less(i, j int) bool { return p[i].da < p[j].da }

// binary search to find index of the page containing da, if any, else -1
func (p simPages) bsearch(da uint64) int {
	l := 0
	r := len(p) - 1
	for l <= r {
		mid := (l + r) / 2
		e := p[mid]
		if da >= e.da {
			if da < e.da+e.size {
				return mid
			}
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	return -1
}

// SimDomain is an in-memory Domain that records mappings page for page.
// It enforces what picky hardware enforces: pages cannot overlap, and
// unmap granularity must match the map that installed the page. Useful
// both for tests and for hosts with no real IOMMU to drive.
type SimDomain struct {
	mu    sync.Mutex
	pages simPages
}

func NewSimDomain() *SimDomain {
	return &SimDomain{}
}

func (d *SimDomain) Map(da, pa, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pg := range d.pages {
		if da < pg.da+pg.size && pg.da < da+size {
			return errors.Errorf("page da %#x size %#x overlaps mapping at %#x", da, size, pg.da)
		}
	}
	d.pages = append(d.pages, simPage{da: da, pa: pa, size: size})
	sort.Sort(d.pages)
	return nil
}

func (d *SimDomain) Unmap(da, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.pages.bsearch(da)
	if i < 0 || d.pages[i].da != da || d.pages[i].size != size {
		return errors.Errorf("unmap da %#x size %#x does not match a mapped page", da, size)
	}
	d.pages = append(d.pages[:i], d.pages[i+1:]...)
	return nil
}

// Translate resolves a device address through the installed pages.
func (d *SimDomain) Translate(da uint64) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.pages.bsearch(da)
	if i < 0 {
		return 0, false
	}
	pg := d.pages[i]
	return pg.pa + (da - pg.da), true
}

// Len returns the number of pages currently installed.
func (d *SimDomain) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}
