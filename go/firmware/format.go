package firmware

// Binary layout of an "RPRC" firmware image:
//
//	magic[4]="RPRC", version u32, header_len u32, header[header_len]
//	then sections until end of image:
//	    type u32, da u64, len u32, content[len]
//
// A resource section's content is an array of packed Resource entries.
// Byte order is fixed per deployment and must match the image producer.

var Magic = "RPRC"

// section types
const (
	SectionResource = 0
	SectionText     = 1
	SectionData     = 2
)

// resource entry types. Only trace and bootaddr are interpreted here;
// the rest are recognized so newer images still load.
const (
	RscCarveout = 0
	RscDevmem   = 1
	RscDevice   = 2
	RscIRQ      = 3
	RscTrace    = 4
	RscBootAddr = 5
)

// packed sizes of the structs below
const (
	headerSize   = 12
	sectionSize  = 16
	resourceSize = 76
)

type header struct {
	Magic     string `struc:"[4]byte"`
	Version   uint32
	HeaderLen uint32
}

type section struct {
	Type uint32
	DA   uint64
	Len  uint32
}

// Resource is one entry of a resource-table section. DA, PA, Len and
// Flags mean different things per type; see the type constants.
type Resource struct {
	Type  uint32
	DA    uint64
	PA    uint64
	Len   uint32
	Flags uint32
	Name  string `struc:"[48]byte"`
}
