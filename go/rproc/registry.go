package rproc

import (
	"encoding/binary"
	"log"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/iommu"
	"github.com/ohadbc/upstream-rpmsg/go/models"
)

var (
	ErrNotFound      = errors.New("remote processor not found")
	ErrAlreadyExists = errors.New("remote processor already registered")
	ErrBusy          = errors.New("remote processor is in use")
)

// MaxNameLen bounds processor names.
const MaxNameLen = 100

// FirmwareStore resolves a firmware identifier to image bytes.
// firmware/store provides a directory-backed implementation.
type FirmwareStore interface {
	Fetch(name string) ([]byte, error)
}

// FetchFunc adapts a plain function to a FirmwareStore.
type FetchFunc func(name string) ([]byte, error)

func (f FetchFunc) Fetch(name string) ([]byte, error) {
	return f(name)
}

// Config carries the host-wide collaborators a Registry needs.
type Config struct {
	// Store retrieves firmware images by name.
	Store FirmwareStore
	// Phys maps physical addresses into host windows.
	Phys models.PhysMem
	// Log receives info and warning output; nil is silent.
	Log *log.Logger
	// PhysBits is the host physical address width, 32 when zero.
	PhysBits uint
	// Order is the firmware byte order, little-endian when nil. Fixed
	// per deployment, must match the image producer.
	Order binary.ByteOrder
	// Pages overrides the IOMMU page size candidates (descending).
	Pages []uint64
}

// Registry owns the set of known remote processors. Its lifetime
// belongs to the embedding application; there is no process-wide list.
type Registry struct {
	cfg Config

	mu    sync.Mutex
	procs map[string]*RemoteProc
}

func New(cfg Config) *Registry {
	if cfg.PhysBits == 0 {
		cfg.PhysBits = 32
	}
	if cfg.Order == nil {
		cfg.Order = binary.LittleEndian
	}
	if len(cfg.Pages) == 0 {
		cfg.Pages = iommu.DefaultPages
	}
	return &Registry{
		cfg:   cfg,
		procs: make(map[string]*RemoteProc),
	}
}

// Desc describes a remote processor at registration time.
type Desc struct {
	Name string
	// Ops is the board-specific power/clock sequencing.
	Ops models.Ops
	// Firmware names the image to load on first Get.
	Firmware string
	// Mem is the device-to-physical memory map; nil when the device
	// accesses physical memory directly.
	Mem models.MemMap
	// Domain is the IOMMU domain to program with Mem before loading;
	// nil when no IOMMU sits in front of the device.
	Domain iommu.Domain
}

// Register adds a processor. Platform code calls this once per device,
// usually near boot.
func (r *Registry) Register(d Desc) (*RemoteProc, error) {
	if d.Name == "" || d.Ops == nil {
		return nil, errors.New("registration needs a name and ops")
	}
	if len(d.Name) > MaxNameLen {
		return nil, errors.Errorf("name %q too long", d.Name)
	}
	p := &RemoteProc{
		name:     d.Name,
		ops:      d.Ops,
		firmware: d.Firmware,
		mem:      d.Mem,
		domain:   d.Domain,
		reg:      r,
		state:    models.StateOffline,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.procs[d.Name]; ok {
		return nil, errors.Wrap(ErrAlreadyExists, d.Name)
	}
	r.procs[d.Name] = p
	r.logf("%s is available", d.Name)
	return p, nil
}

// Unregister removes a processor. It fails with ErrBusy while any
// reference (including an in-flight load) is outstanding.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[name]
	if !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	p.mu.Lock()
	busy := p.count != 0
	p.mu.Unlock()
	if busy {
		return errors.Wrap(ErrBusy, name)
	}
	delete(r.procs, name)
	r.logf("removed %s", name)
	return nil
}

// Find looks a processor up by name.
func (r *Registry) Find(name string) (*RemoteProc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return p, nil
}

// Names lists registered processors, sorted, for inspection tooling.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.cfg.Log != nil {
		r.cfg.Log.Printf(format, args...)
	}
}
