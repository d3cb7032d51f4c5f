// Package vbe selects a VBE2 video mode during stage-2. It is grounded on
// original_source's crates/bios/src/lib.rs video module (VesaMode's field
// layout, the attributes-bit and memory-model checks that reject anything
// but a linear, packed-pixel framebuffer) and bootloader/stage-16bit's
// main.rs mode-selection loop (filter on 32 bpp, reduce to the mode whose
// width/height is closest to a requested resolution).
//
// The real INT 10h, AX=4F01h call and its 256-byte-aligned ModeInfoBlock
// buffer are stage-2's job; this package only does the pure decision
// logic, so it can run host-side against a slice of mode info blocks
// gathered however the caller likes (a real BIOS call, or a fixture in a
// test).
package vbe

// requiredAttrMask combines the two ModeInfoBlock attribute bits
// original_source checks before accepting a mode: bit 7 (0x80) for a
// linear framebuffer and bit 4 (0x10) for "supported in protected mode".
const requiredAttrMask = 0x90

// packedPixelModel and directColorModel are the two VesaMode.memory_model
// values original_source accepts; every other model (text, CGA/EGA planar,
// YUV, ...) is rejected.
const (
	packedPixelModel = 4
	directColorModel = 6
)

// ModeInfoBlock is the subset of a VBE2 ModeInfoBlock this package reads.
// Field names and order follow the BIOS's 256-byte structure; only the
// fields mode selection needs are kept.
type ModeInfoBlock struct {
	Attributes   uint16
	Pitch        uint16
	Width        uint16
	Height       uint16
	BitsPerPixel uint8
	MemoryModel  uint8
	PhysBasePtr  uint32
}

// IsUsable reports whether m describes a linear-framebuffer, packed- or
// direct-color mode this kernel can drive — the same two checks
// VesaModeId::querry performs before returning a mode to its caller.
func (m ModeInfoBlock) IsUsable() bool {
	if m.Attributes&requiredAttrMask != requiredAttrMask {
		return false
	}
	return m.MemoryModel == packedPixelModel || m.MemoryModel == directColorModel
}

// Candidate pairs a VBE mode number with its decoded info block.
type Candidate struct {
	ModeID uint16
	Info   ModeInfoBlock
}

// distance is the Manhattan distance between a candidate's resolution and
// a target resolution, the same metric the original bootloader's
// `reduce` mode-selection closure minimizes (comparing width and height
// distance independently, but in practice the two track together for any
// sane firmware's mode list).
func distance(m ModeInfoBlock, wantWidth, wantHeight uint16) uint32 {
	dw := absDiff(m.Width, wantWidth)
	dh := absDiff(m.Height, wantHeight)
	return uint32(dw) + uint32(dh)
}

func absDiff(a, b uint16) uint16 {
	if a > b {
		return a - b
	}
	return b - a
}

// Enumerate selects the usable candidate whose resolution is closest to
// (wantWidth, wantHeight) at exactly minBPP or more bits per pixel,
// mirroring the original loader's ".filter(bpp == 32).reduce(closest)"
// pipeline generalized to any minimum depth. It returns ok == false if no
// candidate is usable.
func Enumerate(candidates []Candidate, wantWidth, wantHeight uint16, minBPP uint8) (Candidate, bool) {
	var (
		best  Candidate
		bestD uint32
		found bool
	)
	for _, c := range candidates {
		if !c.Info.IsUsable() || c.Info.BitsPerPixel < minBPP {
			continue
		}
		d := distance(c.Info, wantWidth, wantHeight)
		if !found || d < bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}
