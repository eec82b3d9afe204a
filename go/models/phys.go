package models

// Region is an owned host mapping of remote memory. Bytes aliases the
// mapped window directly, so writes land in the device-visible memory.
// Unmap releases the window and must run on every exit path; a Region
// is never represented as a bare address/length pair.
type Region interface {
	Bytes() []byte
	Addr() uint64
	Size() uint64
	Unmap() error
}

// PhysMem maps physical address ranges into host-visible windows.
type PhysMem interface {
	MapPhys(pa, size uint64) (Region, error)
}
