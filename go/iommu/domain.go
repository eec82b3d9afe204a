package iommu

// Domain is one remote processor's address translation context. Map
// installs a single page translating da to pa; callers are responsible
// for page granularity. Some hardware rejects unmap requests that don't
// match the granularity of a prior map, so Unmap must be fed the exact
// page sizes Map was.
type Domain interface {
	Map(da, pa, size uint64) error
	Unmap(da, size uint64) error
}
