package firmware

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/ohadbc/upstream-rpmsg/go/models"
	"github.com/ohadbc/upstream-rpmsg/go/physmem"
)

func packHeader(w *bytes.Buffer, notes string) {
	w.WriteString(Magic)
	binary.Write(w, binary.LittleEndian, uint32(1))
	binary.Write(w, binary.LittleEndian, uint32(len(notes)))
	w.WriteString(notes)
}

func packSection(w *bytes.Buffer, typ uint32, da uint64, payload []byte) {
	binary.Write(w, binary.LittleEndian, typ)
	binary.Write(w, binary.LittleEndian, da)
	binary.Write(w, binary.LittleEndian, uint32(len(payload)))
	w.Write(payload)
}

func packRsc(w *bytes.Buffer, typ uint32, da, pa uint64, ln, flags uint32, name string) {
	binary.Write(w, binary.LittleEndian, typ)
	binary.Write(w, binary.LittleEndian, da)
	binary.Write(w, binary.LittleEndian, pa)
	binary.Write(w, binary.LittleEndian, ln)
	binary.Write(w, binary.LittleEndian, flags)
	var buf [48]byte
	copy(buf[:], name)
	w.Write(buf[:])
}

func testLoader(t *testing.T) (*Loader, *physmem.Sim) {
	sim := physmem.NewSim()
	if err := sim.Add(0x9e000000, 0x100000); err != nil {
		t.Fatal(err)
	}
	mem := models.MemMap{{DA: 0x0, PA: 0x9e000000, Size: 0x100000}}
	return &Loader{Addr: models.NewAddrSpace(mem, 32), Phys: sim}, sim
}

func TestPackedSizes(t *testing.T) {
	sizes := []struct {
		v    interface{}
		want int
	}{
		{&header{}, headerSize},
		{&section{}, sectionSize},
		{&Resource{}, resourceSize},
	}
	for _, s := range sizes {
		n, err := struc.Sizeof(s.v)
		if err != nil {
			t.Fatal(err)
		}
		if n != s.want {
			t.Errorf("%T packs to %d bytes, want %d", s.v, n, s.want)
		}
	}
}

func TestOpen(t *testing.T) {
	var w bytes.Buffer
	packHeader(&w, "built by the dsp toolchain\n")
	packSection(&w, SectionText, 0x0, []byte("text"))
	img, err := Open(w.Bytes())
	if err != nil {
		t.Fatal("open failed:", err)
	}
	if img.Version != 1 {
		t.Errorf("version = %d", img.Version)
	}
	if string(img.Notes) != "built by the dsp toolchain\n" {
		t.Errorf("notes = %q", img.Notes)
	}
	if !Match(w.Bytes()) {
		t.Error("Match rejected a valid image")
	}
}

func TestOpenBadImages(t *testing.T) {
	if _, err := Open([]byte("RPRC")); errors.Cause(err) != ErrTooShort {
		t.Errorf("short image = %v, want ErrTooShort", err)
	}
	var w bytes.Buffer
	packHeader(&w, "")
	p := append([]byte("XPRC"), w.Bytes()[4:]...)
	if _, err := Open(p); errors.Cause(err) != ErrBadMagic {
		t.Errorf("bad magic = %v, want ErrBadMagic", err)
	}
	// header_len pointing past the end of the image
	var w2 bytes.Buffer
	w2.WriteString(Magic)
	binary.Write(&w2, binary.LittleEndian, uint32(1))
	binary.Write(&w2, binary.LittleEndian, uint32(0x7fffffff))
	if _, err := Open(w2.Bytes()); errors.Cause(err) != ErrTruncated {
		t.Errorf("oversized text header = %v, want ErrTruncated", err)
	}
}

func TestSections(t *testing.T) {
	var w bytes.Buffer
	packHeader(&w, "notes")
	packSection(&w, SectionText, 0x100, []byte("abcd"))
	packSection(&w, SectionData, 0x2000, []byte{1, 2})
	img, err := Open(w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	secs := img.Sections()
	s1, err := secs.Next()
	if err != nil || s1.Type != SectionText || s1.DA != 0x100 || !bytes.Equal(s1.Data, []byte("abcd")) {
		t.Fatalf("section 1 = %+v, %v", s1, err)
	}
	s2, err := secs.Next()
	if err != nil || s2.Type != SectionData || s2.DA != 0x2000 {
		t.Fatalf("section 2 = %+v, %v", s2, err)
	}
	if _, err := secs.Next(); err != io.EOF {
		t.Errorf("past last section = %v, want EOF", err)
	}
}

func TestSectionsTruncated(t *testing.T) {
	var w bytes.Buffer
	packHeader(&w, "")
	w.Write(make([]byte, 8)) // half a section header
	img, err := Open(w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.Sections().Next(); errors.Cause(err) != ErrTruncated {
		t.Errorf("truncated section header = %v, want ErrTruncated", err)
	}

	w.Reset()
	packHeader(&w, "")
	packSection(&w, SectionText, 0x0, []byte("abcd"))
	p := w.Bytes()[:w.Len()-2] // cut the payload short
	img, err = Open(p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.Sections().Next(); errors.Cause(err) != ErrTruncated {
		t.Errorf("truncated payload = %v, want ErrTruncated", err)
	}
}

func TestLoad(t *testing.T) {
	var rt bytes.Buffer
	packRsc(&rt, RscBootAddr, 0x80000000, 0, 0, 0, "entry")
	packRsc(&rt, RscTrace, 0x2000, 0, 256, 0, "trace0")
	packRsc(&rt, RscCarveout, 0x3000, 0, 0x1000, 0, "ignored")

	var w bytes.Buffer
	packHeader(&w, "notes")
	packSection(&w, SectionText, 0x0, []byte("text section"))
	packSection(&w, SectionResource, 0x1000, rt.Bytes())
	img, err := Open(w.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	l, sim := testLoader(t)
	res, err := l.Load(img)
	if err != nil {
		t.Fatal("load failed:", err)
	}
	if res.BootAddr != 0x80000000 {
		t.Errorf("bootaddr = %#x", res.BootAddr)
	}
	if len(res.Trace) != 1 || res.Trace[0].Size() != 256 {
		t.Fatalf("trace descriptors = %d", len(res.Trace))
	}
	// the text section must have landed at its translated address
	win, err := sim.MapPhys(0x9e000000, 12)
	if err != nil {
		t.Fatal(err)
	}
	if string(win.Bytes()) != "text section" {
		t.Errorf("text section landed wrong: %q", win.Bytes())
	}
	// the trace window aliases device memory
	tw, _ := sim.MapPhys(0x9e002000, 8)
	copy(tw.Bytes(), "dsp log")
	if !bytes.HasPrefix(res.Trace[0].Bytes(), []byte("dsp log")) {
		t.Error("trace descriptor does not alias the trace buffer")
	}
	res.Rollback()
}

func TestLoadFirstBootAddrWins(t *testing.T) {
	var rt bytes.Buffer
	packRsc(&rt, RscBootAddr, 0x1000, 0, 0, 0, "first")
	packRsc(&rt, RscBootAddr, 0x2000, 0, 0, 0, "second")
	var w bytes.Buffer
	packHeader(&w, "")
	packSection(&w, SectionResource, 0x0, rt.Bytes())
	img, _ := Open(w.Bytes())

	l, _ := testLoader(t)
	res, err := l.Load(img)
	if err != nil {
		t.Fatal(err)
	}
	if res.BootAddr != 0x1000 {
		t.Errorf("bootaddr = %#x, want first entry to win", res.BootAddr)
	}
}

func TestLoadExtraTraceSkipped(t *testing.T) {
	var rt bytes.Buffer
	packRsc(&rt, RscTrace, 0x1000, 0, 64, 0, "trace0")
	packRsc(&rt, RscTrace, 0x2000, 0, 64, 0, "trace1")
	packRsc(&rt, RscTrace, 0x3000, 0, 64, 0, "trace2")
	packRsc(&rt, RscBootAddr, 0x8000, 0, 0, 0, "entry")
	var w bytes.Buffer
	packHeader(&w, "")
	packSection(&w, SectionResource, 0x0, rt.Bytes())
	img, _ := Open(w.Bytes())

	l, _ := testLoader(t)
	res, err := l.Load(img)
	if err != nil {
		t.Fatal("third trace buffer aborted the load:", err)
	}
	if len(res.Trace) != MaxTrace {
		t.Errorf("trace descriptors = %d, want %d", len(res.Trace), MaxTrace)
	}
	if res.BootAddr != 0x8000 {
		t.Error("entries after the extra trace rsc were not processed")
	}
}

func TestLoadBadResourceTable(t *testing.T) {
	var rt1 bytes.Buffer
	packRsc(&rt1, RscTrace, 0x1000, 0, 64, 0, "trace0")
	var rt2 bytes.Buffer
	packRsc(&rt2, RscTrace, 0x2000, 0, 64, 0, "trace1")
	rt2.WriteByte(0) // no longer a multiple of the entry size

	var w bytes.Buffer
	packHeader(&w, "")
	packSection(&w, SectionResource, 0x0, rt1.Bytes())
	packSection(&w, SectionResource, 0x100, rt2.Bytes())
	img, _ := Open(w.Bytes())

	l, phys := testLoader(t)
	track := &trackPhys{PhysMem: phys}
	l.Phys = track
	if _, err := l.Load(img); errors.Cause(err) != ErrTruncated {
		t.Fatalf("ragged resource table = %v, want ErrTruncated", err)
	}
	if n := track.live(); n != 0 {
		t.Errorf("%d mappings leaked after failed load", n)
	}
}

func TestLoadUnknownAddress(t *testing.T) {
	var w bytes.Buffer
	packHeader(&w, "")
	packSection(&w, SectionText, 0xdead0000, []byte("text"))
	img, _ := Open(w.Bytes())
	l, _ := testLoader(t)
	if _, err := l.Load(img); errors.Cause(err) != models.ErrInvalidAddress {
		t.Errorf("unmapped da = %v, want ErrInvalidAddress", err)
	}
}

// trackPhys counts mapped windows so tests can prove rollback
type trackPhys struct {
	models.PhysMem
	regions []*trackRegion
}

type trackRegion struct {
	models.Region
	unmapped bool
}

func (t *trackRegion) Unmap() error {
	t.unmapped = true
	return t.Region.Unmap()
}

func (t *trackPhys) MapPhys(pa, size uint64) (models.Region, error) {
	r, err := t.PhysMem.MapPhys(pa, size)
	if err != nil {
		return nil, err
	}
	tr := &trackRegion{Region: r}
	t.regions = append(t.regions, tr)
	return tr, nil
}

func (t *trackPhys) live() int {
	n := 0
	for _, r := range t.regions {
		if !r.unmapped {
			n++
		}
	}
	return n
}
