// Package stage2 assembles the Stage16To32 handoff record: it captures the
// E820 memory map (via the e820 subpackage), selects a video mode (via the
// vbe subpackage), loads stage-3 and the kernel image off the FAT volume
// stage-1 already found, and lays all of it out in the fixed-layout record
// internal/bootrecord defines.
//
// The actual BIOS calls (INT 15h E820h, INT 10h VBE, INT 13h extended
// reads) have no portable Go representation and live in assembly, called
// through the package-level hook variables below — the same black-box-
// contract idiom kernel/cpu and kernel/task use for their own
// asm-implemented primitives. Everything else here (arranging the raw BIOS
// results into a Stage16To32, choosing which files to load) is ordinary,
// independently testable Go.
package stage2

import (
	"unsafe"

	"github.com/corigan01/quantumos/boot/stage1/fat"
	"github.com/corigan01/quantumos/boot/stage2/e820"
	"github.com/corigan01/quantumos/boot/stage2/vbe"
	"github.com/corigan01/quantumos/internal/bootrecord"
)

// Config names the files stage-2 must locate on the boot volume and the
// video mode it would prefer, the same handful of knobs
// original_source's qconfig.cfg exposes (expected_vbe_mode, bootloader32,
// bootloader64, kernel).
type Config struct {
	Stage3Path string
	KernelPath string
	InitfsPath string

	WantWidth  uint16
	WantHeight uint16
	MinBPP     uint8
}

// queryE820Fn and queryVBEModesFn are overridden by stage-2's assembly
// entry point (and by tests) to supply the raw BIOS results; the defaults
// report nothing available, matching "no BIOS support" rather than
// panicking.
var (
	queryE820Fn     = func() []e820.RawEntry { return nil }
	queryVBEModesFn = func() []vbe.Candidate { return nil }
)

// loadFileFn reads a whole file off the boot volume by path, backed by
// boot/stage1/fat.FindFile + fat.ReadFile over a real Disk on hardware.
type loadFileFn func(disk fat.Disk, bpb fat.BiosParameterBlock, path string) ([]byte, error)

// LoadFile is the default loadFileFn: resolve the path to a directory
// entry, then read its cluster chain.
func LoadFile(disk fat.Disk, bpb fat.BiosParameterBlock, path string) ([]byte, error) {
	entry, err := fat.FindFile(disk, bpb, path)
	if err != nil {
		return nil, err
	}
	return fat.ReadFile(disk, bpb, entry.FirstCluster(), entry.FileSize)
}

// Assemble builds the Stage16To32 handoff record: it loads stage-3, the
// kernel image, and (if named) an initfs off disk, captures the memory
// map, and selects a video mode — everything stage-3 needs to take over.
// A missing optional file (InitfsPath == "") or a failed video-mode search
// is not an error; only a failure to load stage-3 or the kernel is fatal,
// since the machine cannot continue without them.
func Assemble(disk fat.Disk, bpb fat.BiosParameterBlock, cfg Config, load loadFileFn) (*bootrecord.Stage16To32, error) {
	if load == nil {
		load = LoadFile
	}

	var out bootrecord.Stage16To32

	stage3Img, err := load(disk, bpb, cfg.Stage3Path)
	if err != nil {
		return nil, err
	}
	out.Stage32 = ownedRange(stage3Img)

	kernelImg, err := load(disk, bpb, cfg.KernelPath)
	if err != nil {
		return nil, err
	}
	out.Kernel = ownedRange(kernelImg)

	if cfg.InitfsPath != "" {
		if initfsImg, ierr := load(disk, bpb, cfg.InitfsPath); ierr == nil {
			out.Initfs = ownedRange(initfsImg)
		}
	}

	entries := e820.Capture(queryE820Fn())
	e820.FillHandoff(&out, entries)

	if mode, ok := vbe.Enumerate(queryVBEModesFn(), cfg.WantWidth, cfg.WantHeight, cfg.MinBPP); ok {
		out.HasVideoMode = true
		out.VideoMode = bootrecord.ChosenVideoMode{
			ModeID: mode.ModeID,
			Info: bootrecord.VesaModeInfo{
				Width:            mode.Info.Width,
				Height:           mode.Info.Height,
				BitsPerPixel:     mode.Info.BitsPerPixel,
				BytesPerScanline: uint32(mode.Info.Pitch),
				PhysBasePtr:      mode.Info.PhysBasePtr,
			},
		}
	}

	return &out, nil
}

// ownedRangeFn is overridden in tests (where "memory" is just a Go slice,
// not a real physical address); on real hardware it records the already-
// loaded buffer's location in the bump-allocated stage-2 arena.
var ownedRangeFn = defaultOwnedRange

func ownedRange(buf []byte) bootrecord.ByteRange { return ownedRangeFn(buf) }

func defaultOwnedRange(buf []byte) bootrecord.ByteRange {
	if len(buf) == 0 {
		return bootrecord.ByteRange{}
	}
	return bootrecord.ByteRange{Addr: uintptr(unsafe.Pointer(&buf[0])), Len: uintptr(len(buf))}
}
