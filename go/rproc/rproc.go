package rproc

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/iommu"
	"github.com/ohadbc/upstream-rpmsg/go/models"
)

// RemoteProc is one managed auxiliary core. All mutable state is
// guarded by mu; name, ops, firmware, mem and domain are fixed at
// registration.
type RemoteProc struct {
	name     string
	firmware string
	mem      models.MemMap
	ops      models.Ops
	domain   iommu.Domain
	reg      *Registry

	mu    sync.Mutex
	count int
	state models.State
	// loadDone is closed when the in-flight load resolves, and re-made
	// on each new loading cycle
	loadDone chan struct{}
	trace    []models.Region
	// mapped tracks whether mem is currently programmed into domain
	mapped bool
}

func (p *RemoteProc) Name() string {
	return p.name
}

func (p *RemoteProc) Firmware() string {
	return p.firmware
}

func (p *RemoteProc) State() models.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status renders like "running (2)" for inspection tooling.
func (p *RemoteProc) Status() string {
	st := p.State()
	return fmt.Sprintf("%s (%d)", st, int(st))
}

// RefCount returns the current usage count.
func (p *RemoteProc) RefCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// TraceBuf copies trace buffer i up to its first NUL, the way the
// remote side terminates its log text. ok is false when the buffer
// doesn't exist or nothing is loaded.
func (p *RemoteProc) TraceBuf(i int) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.trace) {
		return nil, false
	}
	b := p.trace[i].Bytes()
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		end = len(b)
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out, true
}

// Suspend parks a running processor. Reserved for the messaging layer;
// the lifecycle manager itself never suspends anyone.
func (p *RemoteProc) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != models.StateRunning {
		return errors.Errorf("can't suspend %s processor %s", p.state, p.name)
	}
	p.state = models.StateSuspended
	return nil
}

// Resume wakes a suspended processor.
func (p *RemoteProc) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != models.StateSuspended {
		return errors.Errorf("can't resume %s processor %s", p.state, p.name)
	}
	p.state = models.StateRunning
	return nil
}

// ReportCrash marks a running processor crashed. There is no automatic
// recovery; the processor stays crashed until its users put it and get
// it again.
func (p *RemoteProc) ReportCrash() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != models.StateRunning {
		return
	}
	p.state = models.StateCrashed
	p.reg.logf("remote processor %s crashed", p.name)
}

// WaitLoad blocks until any in-flight firmware load resolves. Get
// returns before the processor is actually up; callers that need it
// running wait here and then check State.
func (p *RemoteProc) WaitLoad() {
	p.mu.Lock()
	done := p.loadDone
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}
