package models

import (
	"testing"

	"github.com/pkg/errors"
)

func TestTranslateTable(t *testing.T) {
	s := NewAddrSpace(MemMap{
		{DA: 0x1000, PA: 0x9000, Size: 0x1000},
	}, 32)
	table := map[uint64]uint64{
		0x1000: 0x9000,
		0x1234: 0x9234,
		0x1fff: 0x9fff,
	}
	for da, want := range table {
		pa, err := s.Translate(da)
		if err != nil {
			t.Fatalf("translate %#x failed: %v", da, err)
		}
		if pa != want {
			t.Errorf("translate %#x = %#x, want %#x", da, pa, want)
		}
	}
	for _, da := range []uint64{0x0, 0xfff, 0x2000, 0x10000} {
		if _, err := s.Translate(da); errors.Cause(err) != ErrInvalidAddress {
			t.Errorf("translate %#x = %v, want ErrInvalidAddress", da, err)
		}
	}
}

func TestTranslateFirstMatch(t *testing.T) {
	s := NewAddrSpace(MemMap{
		{DA: 0x0, PA: 0xa0000000, Size: 0x100000},
		{DA: 0x100000, PA: 0xb0000000, Size: 0x100000},
	}, 32)
	if pa, err := s.Translate(0x100010); err != nil || pa != 0xb0000010 {
		t.Errorf("translate second entry = %#x, %v", pa, err)
	}
}

func TestTranslateDirect(t *testing.T) {
	s := NewAddrSpace(nil, 32)
	if pa, err := s.Translate(0x9e000000); err != nil || pa != 0x9e000000 {
		t.Errorf("direct translate = %#x, %v", pa, err)
	}
	if _, err := s.Translate(0x100000000); errors.Cause(err) != ErrOutOfRange {
		t.Errorf("direct translate past 32 bits = %v, want ErrOutOfRange", err)
	}
	wide := NewAddrSpace(nil, 40)
	if pa, err := wide.Translate(0x100000000); err != nil || pa != 0x100000000 {
		t.Errorf("40-bit translate = %#x, %v", pa, err)
	}
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		StateOffline:   "offline",
		StateSuspended: "suspended",
		StateRunning:   "running",
		StateLoading:   "loading",
		StateCrashed:   "crashed",
		State(42):      "invalid state",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s, want)
		}
	}
}
