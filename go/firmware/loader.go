package firmware

import (
	"io"
	"log"

	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/models"
)

// MaxTrace is how many trace buffers one processor may announce. Two
// covers devices running two autonomous cores off a single image.
const MaxTrace = 2

var ErrTooManyTrace = errors.New("too many trace buffers")

// Loader places image sections into a remote processor's address space.
type Loader struct {
	Addr *models.AddrSpace
	Phys models.PhysMem
	Log  *log.Logger
}

// Result is what a successful load hands to the lifecycle layer.
type Result struct {
	// BootAddr is the first instruction address, 0 if the image never
	// announced one.
	BootAddr uint64
	// Trace holds the mapped trace buffer windows, at most MaxTrace.
	Trace []models.Region

	bootSet bool
}

// Rollback unmaps every trace buffer the load mapped.
func (res *Result) Rollback() {
	for _, tb := range res.Trace {
		tb.Unmap()
	}
	res.Trace = nil
}

// Load copies every section to its translated physical address and
// interprets the resource table. On any error the trace buffers mapped
// so far are unmapped before it returns; section copies are not undone.
func (l *Loader) Load(img *Image) (*Result, error) {
	res := &Result{}
	secs := img.Sections()
	for {
		sec, err := secs.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = l.loadSection(img, sec, res)
		}
		if err != nil {
			res.Rollback()
			return nil, err
		}
	}
	return res, nil
}

func (l *Loader) loadSection(img *Image, sec *Section, res *Result) error {
	pa, err := l.Addr.Translate(sec.DA)
	if err != nil {
		return err
	}
	mem, err := l.Phys.MapPhys(pa, uint64(len(sec.Data)))
	if err != nil {
		return errors.Wrapf(err, "can't map section at pa %#x", pa)
	}
	// put the section where the remote processor will expect it
	copy(mem.Bytes(), sec.Data)
	if err := mem.Unmap(); err != nil {
		return err
	}
	if sec.Type == SectionResource {
		return l.handleResources(img, sec, res)
	}
	return nil
}

func (l *Loader) handleResources(img *Image, sec *Section, res *Result) error {
	rscs, err := img.Resources(sec)
	if err != nil {
		return err
	}
	for i := range rscs {
		rsc := &rscs[i]
		switch rsc.Type {
		case RscTrace:
			if err := l.handleTrace(rsc, res); err != nil {
				return err
			}
		case RscBootAddr:
			if res.bootSet {
				l.logf("bootaddr already set, ignoring %#x", rsc.DA)
				break
			}
			res.BootAddr = rsc.DA
			res.bootSet = true
		default:
			// unrecognized resource types are fine, newer images may
			// carry entries we don't interpret yet
		}
	}
	return nil
}

func (l *Loader) handleTrace(rsc *Resource, res *Result) error {
	if len(res.Trace) == MaxTrace {
		// not fatal, the extra buffer just isn't exposed
		l.logf("skipping extra trace rsc %s: %v", rsc.Name, ErrTooManyTrace)
		return nil
	}
	pa, err := l.Addr.Translate(rsc.DA)
	if err != nil {
		return errors.Wrapf(err, "trace buffer %s", rsc.Name)
	}
	mem, err := l.Phys.MapPhys(pa, uint64(rsc.Len))
	if err != nil {
		return errors.Wrapf(err, "can't map trace buffer %s", rsc.Name)
	}
	res.Trace = append(res.Trace, mem)
	return nil
}

func (l *Loader) logf(format string, args ...interface{}) {
	if l.Log != nil {
		l.Log.Printf(format, args...)
	}
}
