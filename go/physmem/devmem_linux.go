package physmem

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ohadbc/upstream-rpmsg/go/models"
)

// DevMem maps physical memory through /dev/mem. This is the backend for
// hosts where the reserved carveout is plain system RAM.
type DevMem struct {
	f        *os.File
	pageSize uint64
}

func OpenDevMem() (*DevMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "can't open /dev/mem")
	}
	return &DevMem{f: f, pageSize: uint64(os.Getpagesize())}, nil
}

func (d *DevMem) MapPhys(pa, size uint64) (models.Region, error) {
	// mmap offsets must be page aligned, the window usually isn't
	off := pa &^ (d.pageSize - 1)
	pad := pa - off
	raw, err := unix.Mmap(int(d.f.Fd()), int64(off), int(size+pad),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "can't mmap pa %#x+%#x", pa, size)
	}
	return &devRegion{pa: pa, size: size, raw: raw, data: raw[pad : pad+size]}, nil
}

func (d *DevMem) Close() error {
	return d.f.Close()
}

type devRegion struct {
	pa, size uint64
	raw      []byte
	data     []byte
}

func (r *devRegion) Bytes() []byte { return r.data }
func (r *devRegion) Addr() uint64  { return r.pa }
func (r *devRegion) Size() uint64  { return r.size }

func (r *devRegion) Unmap() error {
	if r.raw == nil {
		return nil
	}
	err := unix.Munmap(r.raw)
	r.raw, r.data = nil, nil
	return err
}
