// Package stage3 builds the higher-half kernel address space: it parses
// the kernel's ELF64 image, loads its PT_LOAD segments, builds the
// identity- and higher-half-mapped page tables (via the pagetable
// subpackage), and hands off to the kernel entry point with a
// KernelBootHeader.
//
// The ELF64 reader below is a hand-rolled byte-offset parser rather than
// the standard library's debug/elf, matching this codebase's established
// idiom of parsing binary headers directly off a byte slice (see
// kernel/idt's gate descriptor and kernel/mem/vmm's page-table entry
// encoding) — and grounded directly on original_source's lib/src/elf/mod.rs
// ElfHeader::from_bytes/u16_from_data/u32_from_data/u64_from_data and
// ProgramHeader, which read an ELF file the exact same way: raw offsets
// into a byte slice, no reflection, no owning allocator.
package stage3

import "fmt"

// elfMagic is the four-byte ELF identification prefix.
var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// ELF64 class/data/type/machine values this loader accepts; stage-3 only
// ever boots one architecture's kernel, so anything else is a hard error
// rather than a type this package bothers modeling.
const (
	elfClass64      = 2
	elfDataLE       = 1
	elfTypeExec     = 2
	elfTypeShared   = 3
	elfMachineAMD64 = 0x3E
)

// SegmentType mirrors a subset of ELF64 program header p_type values.
type SegmentType uint32

const (
	SegmentNull SegmentType = 0
	SegmentLoad SegmentType = 1
)

// Flags are the ELF64 program header p_flags bits.
type Flags uint32

const (
	FlagExecute Flags = 1 << 0
	FlagWrite   Flags = 1 << 1
	FlagRead    Flags = 1 << 2
)

// Segment is one decoded PT_LOAD program header: where its bytes live in
// the file, and where they belong in virtual memory.
type Segment struct {
	Type     SegmentType
	Flags    Flags
	FileOff  uint64
	VirtAddr uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// Image is a parsed ELF64 executable: its entry point and every program
// header, PT_LOAD or otherwise (non-LOAD segments are kept so a caller can
// at least recognize e.g. PT_INTERP and reject it explicitly).
type Image struct {
	Entry    uint64
	Segments []Segment

	raw []byte
}

func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func le32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func le64(b []byte, off int) uint64 {
	return uint64(le32(b, off)) | uint64(le32(b, off+4))<<32
}

// ParseELF64 decodes raw as an ELF64, little-endian, x86-64 executable or
// shared object. It validates just enough of the header to be confident
// the program-header table can be trusted: magic, class, data encoding,
// machine, and that the file is long enough to actually hold the table it
// claims to have.
func ParseELF64(raw []byte) (*Image, error) {
	if len(raw) < 64 {
		return nil, fmt.Errorf("stage3: elf header too short: %d bytes", len(raw))
	}
	for i, m := range elfMagic {
		if raw[i] != m {
			return nil, fmt.Errorf("stage3: missing ELF magic")
		}
	}
	if raw[4] != elfClass64 {
		return nil, fmt.Errorf("stage3: not a 64-bit ELF (e_ident[EI_CLASS]=%d)", raw[4])
	}
	if raw[5] != elfDataLE {
		return nil, fmt.Errorf("stage3: not little-endian (e_ident[EI_DATA]=%d)", raw[5])
	}

	elfType := le16(raw, 16)
	if elfType != elfTypeExec && elfType != elfTypeShared {
		return nil, fmt.Errorf("stage3: unsupported e_type %d", elfType)
	}
	if machine := le16(raw, 18); machine != elfMachineAMD64 {
		return nil, fmt.Errorf("stage3: unsupported e_machine %d, want x86-64", machine)
	}

	entry := le64(raw, 24)
	phoff := le64(raw, 32)
	phentsize := le16(raw, 54)
	phnum := le16(raw, 56)

	img := &Image{Entry: entry, raw: raw}

	for i := uint16(0); i < phnum; i++ {
		off := int(phoff) + int(phentsize)*int(i)
		if off+56 > len(raw) {
			return nil, fmt.Errorf("stage3: program header %d out of bounds", i)
		}
		ph := raw[off : off+56]
		seg := Segment{
			Type:     SegmentType(le32(ph, 0)),
			Flags:    Flags(le32(ph, 4)),
			FileOff:  le64(ph, 8),
			VirtAddr: le64(ph, 16),
			FileSize: le64(ph, 32),
			MemSize:  le64(ph, 40),
			Align:    le64(ph, 48),
		}
		img.Segments = append(img.Segments, seg)
	}
	return img, nil
}

// LoadSegments calls fn once per PT_LOAD segment, passing the segment
// header and the slice of raw's bytes making up its on-file contents
// (FileSize may be less than MemSize; the caller zero-fills the
// difference, the standard ELF "bss tail" convention).
func (img *Image) LoadSegments(fn func(seg Segment, fileBytes []byte) error) error {
	for _, seg := range img.Segments {
		if seg.Type != SegmentLoad {
			continue
		}
		end := seg.FileOff + seg.FileSize
		if end > uint64(len(img.raw)) {
			return fmt.Errorf("stage3: segment at vaddr %#x extends past end of file", seg.VirtAddr)
		}
		if err := fn(seg, img.raw[seg.FileOff:end]); err != nil {
			return err
		}
	}
	return nil
}

// VirtSpan returns the lowest VirtAddr and the highest VirtAddr+MemSize
// across every PT_LOAD segment, the span stage-3's page tables need to
// cover for the kernel's executable image.
func (img *Image) VirtSpan() (lo, hi uint64) {
	first := true
	for _, seg := range img.Segments {
		if seg.Type != SegmentLoad {
			continue
		}
		segHi := seg.VirtAddr + seg.MemSize
		if first || seg.VirtAddr < lo {
			lo = seg.VirtAddr
		}
		if first || segHi > hi {
			hi = segHi
		}
		first = false
	}
	return lo, hi
}
