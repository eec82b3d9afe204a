package rproc

import (
	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/firmware"
	"github.com/ohadbc/upstream-rpmsg/go/iommu"
	"github.com/ohadbc/upstream-rpmsg/go/models"
)

var (
	ErrNoFirmware = errors.New("no firmware configured")
	ErrUnbalanced = errors.New("asymmetric put (forgot to call Get?)")
	ErrStopFailed = errors.New("can't stop remote processor")
)

// Get powers up the named processor: load its firmware, program the
// IOMMU, boot it. The load runs asynchronously; Get returns a valid
// reference immediately and WaitLoad tells when the outcome is in.
//
// If the processor is already powered (or powering) up, Get just takes
// another reference - the boot sequence is never triggered twice.
// Every successful Get must eventually be paired with a Put.
func (r *Registry) Get(name string) (*RemoteProc, error) {
	p, err := r.Find(name)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// skip the boot process if the processor is already (being) powered up
	if p.count > 0 {
		p.count++
		return p, nil
	}
	if p.firmware == "" {
		return nil, errors.Wrap(ErrNoFirmware, name)
	}
	r.logf("powering up %s", name)
	p.count = 1
	p.state = models.StateLoading
	// Put calls must wait until the async load resolves
	done := make(chan struct{})
	p.loadDone = done
	go p.loadAndStart(done)
	return p, nil
}

// Put releases a reference taken with Get. The last user powers the
// processor off. Calling Put without a matching Get is a caller bug and
// fails with ErrUnbalanced rather than being ignored.
func (r *Registry) Put(p *RemoteProc) error {
	p.mu.Lock()
	if p.count == 0 {
		p.mu.Unlock()
		return errors.Wrap(ErrUnbalanced, p.name)
	}
	done := p.loadDone
	p.mu.Unlock()

	// if the firmware is just being loaded now, wait; the outcome
	// decides whether there is anything to stop
	if done != nil {
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return errors.Wrap(ErrUnbalanced, p.name)
	}
	p.count--
	// if the processor is still needed, bail out
	if p.count > 0 {
		return nil
	}
	for _, tb := range p.trace {
		tb.Unmap()
	}
	p.trace = nil
	// make sure it is really running before powering it off; the
	// firmware load might have failed
	if p.state == models.StateRunning {
		if err := p.ops.Stop(); err != nil {
			// don't claim a stop that didn't happen
			return errors.Wrapf(ErrStopFailed, "%s: %v", p.name, err)
		}
	}
	p.unmapMemLocked()
	p.state = models.StateOffline
	r.logf("stopped remote processor %s", p.name)
	return nil
}

// loadAndStart runs once per loading cycle, off the caller's path.
// Whatever happens, closing done releases every Put waiting on us.
func (p *RemoteProc) loadAndStart(done chan struct{}) {
	defer close(done)
	r := p.reg

	data, err := r.cfg.Store.Fetch(p.firmware)
	if err != nil {
		r.logf("can't fetch firmware %s: %v", p.firmware, err)
		p.setState(models.StateOffline)
		return
	}
	img, err := firmware.OpenOrder(data, r.cfg.Order)
	if err != nil {
		r.logf("firmware %s rejected: %v", p.firmware, err)
		p.setState(models.StateOffline)
		return
	}
	r.logf("loaded fw image %s, size %d, version %d", p.firmware, len(data), img.Version)

	if err := p.mapMem(); err != nil {
		r.logf("can't program iommu for %s: %v", p.name, err)
		p.setState(models.StateOffline)
		return
	}

	ldr := &firmware.Loader{
		Addr: models.NewAddrSpace(p.mem, r.cfg.PhysBits),
		Phys: r.cfg.Phys,
		Log:  r.cfg.Log,
	}
	res, err := ldr.Load(img)
	if err != nil {
		r.logf("can't process image %s: %v", p.firmware, err)
		p.unmapMem()
		p.setState(models.StateOffline)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.trace = res.Trace
	if err := p.ops.Start(res.BootAddr); err != nil {
		r.logf("can't start %s: %v", p.name, err)
		res.Rollback()
		p.trace = nil
		p.unmapMemLocked()
		p.state = models.StateOffline
		return
	}
	p.state = models.StateRunning
	r.logf("remote processor %s is now up", p.name)
}

// mapMem programs the whole memory map into the processor's IOMMU
// domain. A partial failure rolls back the entries (and the partial
// prefix) already installed.
func (p *RemoteProc) mapMem() error {
	if p.domain == nil || len(p.mem) == 0 {
		return nil
	}
	m := &iommu.Mapper{Domain: p.domain, Pages: p.reg.cfg.Pages}
	for i := range p.mem {
		e := &p.mem[i]
		n, err := m.Map(e.DA, e.PA, e.Size)
		if err != nil {
			if n > 0 {
				m.Unmap(e.DA, e.PA, n)
			}
			for j := i - 1; j >= 0; j-- {
				pe := &p.mem[j]
				m.Unmap(pe.DA, pe.PA, pe.Size)
			}
			return errors.Wrapf(err, "mem entry %d (da %#x)", i, e.DA)
		}
	}
	p.mu.Lock()
	p.mapped = true
	p.mu.Unlock()
	return nil
}

func (p *RemoteProc) unmapMem() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unmapMemLocked()
}

func (p *RemoteProc) unmapMemLocked() {
	if !p.mapped {
		return
	}
	m := &iommu.Mapper{Domain: p.domain, Pages: p.reg.cfg.Pages}
	for i := len(p.mem) - 1; i >= 0; i-- {
		e := &p.mem[i]
		if _, err := m.Unmap(e.DA, e.PA, e.Size); err != nil {
			p.reg.logf("iommu unmap failed for %s: %v", p.name, err)
		}
	}
	p.mapped = false
}

func (p *RemoteProc) setState(s models.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
