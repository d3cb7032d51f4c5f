package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/corigan01/quantumos/boot/stage1/fat"
	"github.com/corigan01/quantumos/internal/bootrecord"
)

// fileDisk adapts an *os.File into a boot/stage1/fat.Disk, the same
// FAT16 reader stage-1 itself uses, reused here host-side so inspect
// walks the image exactly the way the real boot path would. lbaOffset
// shifts every read to the partition's own sector numbering.
type fileDisk struct {
	f         *os.File
	lbaOffset uint32
}

func (d fileDisk) ReadSector(lba uint32, dst []byte) error {
	off := int64(d.lbaOffset+lba) * fat.SectorSize
	n, err := d.f.ReadAt(dst[:fat.SectorSize], off)
	if err != nil {
		return fmt.Errorf("qimg: read sector %d: %w", lba, err)
	}
	if n != fat.SectorSize {
		return fmt.Errorf("qimg: short sector read at %d: got %d bytes", lba, n)
	}
	return nil
}

// InspectCmd opens a built image, mounts its FAT16 partition the same way
// stage-1 does, and prints the embedded handoff diagnostics plus each
// file's directory entry.
func InspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	partitionLBA := fs.Uint("partition-lba", 2048, "starting LBA of the FAT16 partition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("qimg inspect: expected exactly one image path argument")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("qimg inspect: %w", err)
	}
	defer f.Close()

	disk := fileDisk{f: f, lbaOffset: uint32(*partitionLBA)}

	var bootSector [fat.SectorSize]byte
	if err := disk.ReadSector(0, bootSector[:]); err != nil {
		return err
	}
	bpb, err := fat.ParseBPB(bootSector[:])
	if err != nil {
		return fmt.Errorf("qimg inspect: parse BPB: %w", err)
	}

	fmt.Printf("volume label:   %q\n", trimmed(bpb.VolumeLabel[:]))
	fmt.Printf("total sectors:  %d (%s)\n", bpb.TotalSectors(), humanize.Bytes(uint64(bpb.TotalSectors())*fat.SectorSize))
	fmt.Printf("cluster size:   %s\n", humanize.Bytes(uint64(bpb.SectorsPerCluster)*fat.SectorSize))

	entries, err := fat.ReadDir(disk, bpb, 0, true)
	if err != nil {
		return fmt.Errorf("qimg inspect: read root directory: %w", err)
	}
	fmt.Println("\nfiles:")
	for _, e := range entries {
		fmt.Printf("  %-12s %10s  cluster %d\n", e.Name(), humanize.Bytes(uint64(e.Short.FileSize)), e.Short.FirstCluster())
	}

	handoffEntry, err := fat.FindFile(disk, bpb, "HANDOFF.BIN")
	if err != nil {
		fmt.Println("\n(no HANDOFF.BIN diagnostics blob present)")
		return nil
	}
	raw, err := fat.ReadFile(disk, bpb, handoffEntry.FirstCluster(), handoffEntry.FileSize)
	if err != nil {
		return fmt.Errorf("qimg inspect: read HANDOFF.BIN: %w", err)
	}
	handoff, err := bootrecord.DecodeHandoff(raw)
	if err != nil {
		return fmt.Errorf("qimg inspect: decode handoff: %w", err)
	}

	fmt.Println("\nhandoff record (build-time preview, physical addresses are 0 until stage-2 actually runs):")
	fmt.Printf("  stage3: %s\n", humanize.Bytes(uint64(handoff.Stage32.Len)))
	fmt.Printf("  kernel: %s\n", humanize.Bytes(uint64(handoff.Kernel.Len)))
	if !handoff.Initfs.Empty() {
		fmt.Printf("  initfs: %s\n", humanize.Bytes(uint64(handoff.Initfs.Len)))
	}
	return nil
}

func trimmed(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
