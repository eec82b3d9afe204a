package firmware

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var (
	ErrTooShort  = errors.New("firmware image too short")
	ErrBadMagic  = errors.New("firmware image has bad magic")
	ErrTruncated = errors.New("firmware image is truncated")
)

// Match reports whether p starts with the RPRC magic.
func Match(p []byte) bool {
	return len(p) >= len(Magic) && string(p[:len(Magic)]) == Magic
}

// Image is a validated view over firmware bytes. Section payloads alias
// the underlying buffer; nothing is copied until load time.
type Image struct {
	Version uint32
	// Notes is the free-form text header, meant for humans
	Notes []byte

	data  []byte
	order binary.ByteOrder
	off   int // start of the first section
}

// Open validates the fixed header of a little-endian image.
func Open(p []byte) (*Image, error) {
	return OpenOrder(p, binary.LittleEndian)
}

// OpenOrder is Open for deployments with a big-endian producer.
func OpenOrder(p []byte, order binary.ByteOrder) (*Image, error) {
	if len(p) < headerSize {
		return nil, errors.Wrapf(ErrTooShort, "%d bytes", len(p))
	}
	var hdr header
	if err := unpackAt(p, &hdr, 0, order); err != nil {
		return nil, err
	}
	if hdr.Magic != Magic {
		return nil, errors.Wrapf(ErrBadMagic, "%q", hdr.Magic)
	}
	// header_len comes from the image, bound it before trusting it
	if uint64(hdr.HeaderLen) > uint64(len(p)-headerSize) {
		return nil, errors.Wrapf(ErrTruncated, "text header wants %d bytes", hdr.HeaderLen)
	}
	off := headerSize + int(hdr.HeaderLen)
	return &Image{
		Version: hdr.Version,
		Notes:   p[headerSize:off],
		data:    p,
		order:   order,
		off:     off,
	}, nil
}

func unpackAt(p []byte, i interface{}, at int, order binary.ByteOrder) error {
	return struc.UnpackWithOrder(bytes.NewReader(p[at:]), i, order)
}

// Section is one loadable unit of the image.
type Section struct {
	Type uint32
	DA   uint64
	Data []byte
}

// Sections iterates the image front to back.
type Sections struct {
	img *Image
	off int
}

func (img *Image) Sections() *Sections {
	return &Sections{img: img, off: img.off}
}

// Next returns the following section, or io.EOF past the last one.
func (s *Sections) Next() (*Section, error) {
	p := s.img.data
	if s.off == len(p) {
		return nil, io.EOF
	}
	if len(p)-s.off < sectionSize {
		return nil, errors.Wrapf(ErrTruncated, "%d trailing bytes", len(p)-s.off)
	}
	var hdr section
	if err := unpackAt(p, &hdr, s.off, s.img.order); err != nil {
		return nil, err
	}
	s.off += sectionSize
	if uint64(hdr.Len) > uint64(len(p)-s.off) {
		return nil, errors.Wrapf(ErrTruncated, "section at da %#x wants %d bytes, %d left",
			hdr.DA, hdr.Len, len(p)-s.off)
	}
	data := p[s.off : s.off+int(hdr.Len)]
	s.off += int(hdr.Len)
	return &Section{Type: hdr.Type, DA: hdr.DA, Data: data}, nil
}

// Resources unpacks a resource-table section payload.
func (img *Image) Resources(sec *Section) ([]Resource, error) {
	if len(sec.Data)%resourceSize != 0 {
		return nil, errors.Wrapf(ErrTruncated, "resource table is %d bytes", len(sec.Data))
	}
	out := make([]Resource, len(sec.Data)/resourceSize)
	for i := range out {
		if err := unpackAt(sec.Data, &out[i], i*resourceSize, img.order); err != nil {
			return nil, err
		}
		out[i].Name = strings.TrimRight(out[i].Name, "\x00")
	}
	return out, nil
}
