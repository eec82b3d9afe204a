// Package trace reads and writes trace buffer snapshot files. A
// snapshot holds the log text of every trace buffer a processor
// exposed at the moment it was taken, so crashes can be inspected
// offline after the processor is gone.
package trace

import (
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var SnapMagic = "RPTB"

type SnapHeader struct {
	// MAGIC ("RPTB")
	Magic string `struc:"[4]byte"`
	// file format version
	Version uint32
	// processor name, right-null-padded
	Proc string `struc:"[100]byte"`
}

// one trace buffer per frame
type frame struct {
	Index uint8
	Len   uint32 `struc:"sizeof=Data"`
	Data  []byte
}

type Writer struct {
	w  io.WriteCloser
	zw *snappy.Writer
}

func NewWriter(w io.WriteCloser, proc string) (*Writer, error) {
	header := &SnapHeader{
		Magic:   SnapMagic,
		Version: 1,
		Proc:    proc,
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

// write a buffer at a time
func (t *Writer) Snap(index int, data []byte) error {
	return struc.Pack(t.zw, &frame{Index: uint8(index), Data: data})
}

func (t *Writer) Close() {
	t.zw.Close()
	t.w.Close()
}

type Reader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header SnapHeader
}

func NewReader(r io.ReadCloser) (*Reader, error) {
	t := &Reader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != SnapMagic {
		return nil, errors.New("invalid trace snapshot magic")
	}
	t.Header.Proc = strings.TrimRight(t.Header.Proc, "\x00")
	t.zr = snappy.NewReader(r)
	return t, nil
}

func (t *Reader) Next() (int, []byte, error) {
	var f frame
	if err := struc.Unpack(t.zr, &f); err != nil {
		return 0, nil, err
	}
	return int(f.Index), f.Data, nil
}

func (t *Reader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
