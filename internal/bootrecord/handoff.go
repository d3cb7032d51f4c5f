package bootrecord

// ByteRange describes a (pointer, length) pair, the recurring shape of every
// field in Stage16To32 and KernelBootHeader.
type ByteRange struct {
	Addr uintptr
	Len  uintptr
}

// Empty reports whether the range carries no bytes.
func (r ByteRange) Empty() bool { return r.Len == 0 }

// End returns the exclusive end address of the range.
func (r ByteRange) End() uintptr { return r.Addr + r.Len }

// VesaModeInfo is the subset of a VBE ModeInfoBlock that the kernel and
// stage-3 care about: a 32-bpp packed-pixel linear framebuffer.
type VesaModeInfo struct {
	Width         uint16
	Height        uint16
	BitsPerPixel  uint8
	BytesPerScanline uint32
	PhysBasePtr   uint32
}

// ChosenVideoMode pairs the VBE mode id stage-2 selected with its decoded
// info block; the zero value (ModeID == 0) means no suitable mode was found
// and the kernel should not assume a framebuffer exists.
type ChosenVideoMode struct {
	ModeID uint16
	Info   VesaModeInfo
}

// Stage16To32 is produced at the stage-1/stage-2 boundary and consumed by
// stage-3; it is passed by pointer in the architecture's first argument
// register across each stage transition. Field order matches the layout
// every stage agrees on.
type Stage16To32 struct {
	BootloaderStack ByteRange
	Stage32         ByteRange
	Stage64         ByteRange
	Kernel          ByteRange
	Initfs          ByteRange

	MemMap    [MaxE820Entries]E820Entry
	MemMapLen int

	VideoMode ChosenVideoMode
	HasVideoMode bool
}

// AddMemRegion appends entry to MemMap, silently dropping it if the
// fixed-capacity array is already full.
func (s *Stage16To32) AddMemRegion(entry E820Entry) bool {
	if s.MemMapLen >= len(s.MemMap) {
		return false
	}
	s.MemMap[s.MemMapLen] = entry
	s.MemMapLen++
	return true
}

// MemRegions returns the populated prefix of MemMap.
func (s *Stage16To32) MemRegions() []E820Entry {
	return s.MemMap[:s.MemMapLen]
}

// KernelBootHeader is constructed by stage-3 and passed by pointer to the
// kernel's entry point.
type KernelBootHeader struct {
	// PhysMemMap points to a PhysMemoryMap already constructed from the
	// E820 entries plus bootloader-owned regions.
	// It is an opaque pointer here: the kernel reconstructs the typed
	// view via kernel/mem/pmap once paging is active.
	PhysMemMap uintptr

	VideoMode    ChosenVideoMode
	HasVideoMode bool

	KernelELF ByteRange

	KernelExecVirt  ByteRange
	KernelStackVirt ByteRange
	KernelHeapVirt  ByteRange
}
