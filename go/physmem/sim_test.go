package physmem

import (
	"bytes"
	"testing"
)

func TestSimBanks(t *testing.T) {
	sim := NewSim()
	if err := sim.Add(0x9e000000, 0x100000); err != nil {
		t.Fatal("add failed:", err)
	}
	if err := sim.Add(0x9e080000, 0x1000); err == nil {
		t.Error("overlapping bank accepted")
	}
	if _, err := sim.MapPhys(0x1000, 0x100); err == nil {
		t.Error("mapped unbacked range")
	}
	if _, err := sim.MapPhys(0x9e0fff00, 0x200); err == nil {
		t.Error("mapped range straddling end of bank")
	}
}

func TestSimAliasing(t *testing.T) {
	sim := NewSim()
	if err := sim.Add(0x9e000000, 0x10000); err != nil {
		t.Fatal("add failed:", err)
	}
	w, err := sim.MapPhys(0x9e001000, 0x100)
	if err != nil {
		t.Fatal("map failed:", err)
	}
	copy(w.Bytes(), []byte("hello from the dsp"))
	r, err := sim.MapPhys(0x9e001000, 0x20)
	if err != nil {
		t.Fatal("second map failed:", err)
	}
	if !bytes.HasPrefix(r.Bytes(), []byte("hello from the dsp")) {
		t.Error("overlapping window does not alias bank storage")
	}
	if err := w.Unmap(); err != nil {
		t.Error("unmap failed:", err)
	}
	if w.Bytes() != nil {
		t.Error("region still readable after unmap")
	}
	if r.Addr() != 0x9e001000 || r.Size() != 0x20 {
		t.Errorf("region addr/size = %#x/%#x", r.Addr(), r.Size())
	}
}
