// Package diskimage builds the bootable MBR + FAT16 disk image qimg
// produces: an MBR whose bootstrap code is stage-1, a single FAT16
// partition holding stage-2/stage-3/the kernel/the optional initfs, each
// stored as a plain 8.3-named file so stage-1's own boot/stage1/fat reader
// (the exact same BPB/FAT/directory-entry layout, just the write side) can
// find them again at boot time.
//
// This is a host-side build tool, not freestanding code: it runs under a
// normal OS, writes to a regular file through github.com/edsrzf/mmap-go for
// zero-copy sector writes, and reports progress with
// github.com/dustin/go-humanize, matching magiskboot_go's cpio.LoadFromFile/
// humanize.Bytes usage for the same kind of host-side image assembly.
package diskimage

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"

	"github.com/corigan01/quantumos/boot/stage1/fat"
	"github.com/corigan01/quantumos/internal/diskimage/platform"
)

const (
	defaultPartitionStartLBA = 2048
	defaultSectorsPerCluster = 4
	defaultRootEntryCount    = 512
	reservedSectors          = 1
	numFATs                  = 2
)

// FileEntry is one file to embed in the image's FAT16 partition, addressed
// by a bare 8.3 name (e.g. "KERNEL.ELF").
type FileEntry struct {
	Name string
	Data []byte
}

// Config describes the image Build produces.
type Config struct {
	Path string

	// PartitionStartLBA is the sector offset of the FAT16 partition from
	// the start of the disk; it defaults to 2048 (1 MiB), the alignment
	// every modern partitioning tool uses so the partition starts on an
	// SSD erase-block boundary.
	PartitionStartLBA uint32
	SectorsPerCluster uint8
	VolumeLabel       string

	// BootCode is stage-1's assembled boot sector code, embedded as the
	// MBR's bootstrap region (up to 440 bytes; longer code must relocate
	// itself, which is stage-1's concern, not this package's).
	BootCode []byte

	Files []FileEntry
}

// Result reports where Build placed each file's first cluster, so a
// caller building internal/bootrecord's handoff records (or a test) can
// cross-check the image without re-parsing it.
type Result struct {
	TotalSectors uint32
	BytesWritten int64
	FileClusters map[string]uint32
}

// Build assembles and writes the full disk image to cfg.Path.
func Build(cfg Config) (*Result, error) {
	if cfg.SectorsPerCluster == 0 {
		cfg.SectorsPerCluster = defaultSectorsPerCluster
	}
	if cfg.PartitionStartLBA == 0 {
		cfg.PartitionStartLBA = defaultPartitionStartLBA
	}
	if len(cfg.BootCode) > mbrBootstrapSize {
		return nil, fmt.Errorf("diskimage: boot code is %d bytes, exceeds %d-byte MBR bootstrap region", len(cfg.BootCode), mbrBootstrapSize)
	}

	names := make(map[string]bool, len(cfg.Files))
	for _, f := range cfg.Files {
		if names[f.Name] {
			return nil, fmt.Errorf("diskimage: duplicate file name %q", f.Name)
		}
		names[f.Name] = true
	}

	bpb, clusterSize, err := planBPB(cfg)
	if err != nil {
		return nil, err
	}

	fileClusters, fatEntries, dataRegion, err := layoutFiles(cfg.Files, clusterSize, bpb.CountOfClusters())
	if err != nil {
		return nil, err
	}

	partitionSectors := bpb.TotalSectors()
	totalSectors := cfg.PartitionStartLBA + partitionSectors

	mbr := MBRHeader{
		Bootstrap: cfg.BootCode,
		DiskID:    0x51544f53, // "QTOS", an arbitrary but stable disk id
		Entries: [mbrEntryCount]MBREntry{
			{Bootable: true, Type: PartitionTypeFAT16LBA, StartLBA: cfg.PartitionStartLBA, SectorCount: partitionSectors},
		},
	}

	image := make([]byte, uint64(totalSectors)*fat.SectorSize)
	copy(image[:fat.SectorSize], mbr.Marshal())

	partBase := uint64(cfg.PartitionStartLBA) * fat.SectorSize
	copy(image[partBase:partBase+fat.SectorSize], bpb.Marshal())

	writeFATCopies(image, partBase, bpb, fatEntries)
	writeRootDir(image, partBase, bpb, cfg.Files, fileClusters)
	writeDataRegion(image, partBase, bpb, dataRegion)

	n, err := writeImageFile(cfg.Path, image)
	if err != nil {
		return nil, err
	}

	return &Result{
		TotalSectors: totalSectors,
		BytesWritten: n,
		FileClusters: fileClusters,
	}, nil
}

// planBPB sizes the FAT16 volume for cfg.Files and returns the resulting
// BiosParameterBlock plus the byte size of one cluster.
func planBPB(cfg Config) (fat.BiosParameterBlock, uint32, error) {
	var totalFileBytes int64
	for _, f := range cfg.Files {
		totalFileBytes += int64(len(f.Data))
	}

	clusterSize := uint32(cfg.SectorsPerCluster) * fat.SectorSize
	dataClustersNeeded := uint32((totalFileBytes + int64(clusterSize) - 1) / int64(clusterSize))
	// Pad the data region generously: FAT16 requires at least 4085
	// clusters, and real-world tooling (QEMU, a BIOS) is happiest with
	// some slack rather than an image sized to the exact byte.
	if dataClustersNeeded < 4096 {
		dataClustersNeeded = 4096
	}

	rootEntryCount := uint16(defaultRootEntryCount)
	rootDirSectors := (uint32(rootEntryCount)*fat.DirEntrySize + fat.SectorSize - 1) / fat.SectorSize

	dataSectors := dataClustersNeeded * uint32(cfg.SectorsPerCluster)
	fatSectors := computeFATSectors(dataClustersNeeded)

	totalSectors := reservedSectors + numFATs*fatSectors + rootDirSectors + dataSectors

	bpb := fat.BiosParameterBlock{
		BytesPerSector:    fat.SectorSize,
		SectorsPerCluster: cfg.SectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           numFATs,
		RootEntryCount:    rootEntryCount,
		MediaType:         0xF8, // fixed disk
		SectorsPerFAT16:   uint16(fatSectors),
		DriveNumber:       0x80,
		BootSig:           0x29,
		VolumeID:          0x51544f53,
	}
	copy(bpb.OEMName[:], []byte("QUANTUM "))
	copy(bpb.FileSysType[:], []byte("FAT16   "))
	label := cfg.VolumeLabel
	if label == "" {
		label = "QUANTUMOS"
	}
	for i := range bpb.VolumeLabel {
		bpb.VolumeLabel[i] = ' '
	}
	copy(bpb.VolumeLabel[:], []byte(label))

	if totalSectors <= 0xFFFF {
		bpb.TotalSectors16 = uint16(totalSectors)
	} else {
		bpb.TotalSectors32 = totalSectors
	}

	if !bpb.IsFAT16() {
		return bpb, 0, fmt.Errorf("diskimage: computed layout is not a valid FAT16 volume (cluster count %d)", bpb.CountOfClusters())
	}
	return bpb, clusterSize, nil
}

// computeFATSectors finds the FAT16 table size (in sectors) needed to hold
// one 2-byte entry per cluster, per FAT16's fixed entry width.
func computeFATSectors(clusterCount uint32) uint32 {
	entriesPerSector := uint32(fat.SectorSize / 2)
	fatSectors := (clusterCount + 2 + entriesPerSector - 1) / entriesPerSector
	if fatSectors == 0 {
		fatSectors = 1
	}
	return fatSectors
}

// layoutFiles assigns each file a starting cluster (clusters are handed
// out sequentially starting at 2, the first non-reserved cluster number)
// and builds the resulting FAT16 entry table plus a flat byte buffer of
// every file's cluster-padded contents in allocation order.
func layoutFiles(files []FileEntry, clusterSize uint32, totalClusters uint32) (map[string]uint32, []uint16, []byte, error) {
	ordered := make([]FileEntry, len(files))
	copy(ordered, files)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	fatEntries := make([]uint16, totalClusters+2)
	fileClusters := make(map[string]uint32, len(files))
	var dataRegion []byte

	next := uint32(2)
	for _, f := range ordered {
		clustersNeeded := (uint32(len(f.Data)) + clusterSize - 1) / clusterSize
		if clustersNeeded == 0 {
			clustersNeeded = 1
		}
		if next+clustersNeeded > totalClusters+2 {
			return nil, nil, nil, fmt.Errorf("diskimage: file %q does not fit in the planned data region", f.Name)
		}

		start := next
		fileClusters[f.Name] = start
		for i := uint32(0); i < clustersNeeded; i++ {
			cur := next + i
			if i == clustersNeeded-1 {
				fatEntries[cur] = 0xFFFF // end of chain
			} else {
				fatEntries[cur] = uint16(cur + 1)
			}
		}
		next += clustersNeeded

		padded := make([]byte, clustersNeeded*clusterSize)
		copy(padded, f.Data)
		dataRegion = append(dataRegion, padded...)
	}

	return fileClusters, fatEntries, dataRegion, nil
}

func writeFATCopies(image []byte, partBase uint64, bpb fat.BiosParameterBlock, fatEntries []uint16) {
	fatBase := partBase + uint64(bpb.ReservedSectors)*fat.SectorSize
	fatBytes := uint64(bpb.SectorsPerFAT16) * fat.SectorSize

	buf := make([]byte, fatBytes)
	for i, entry := range fatEntries {
		off := i * 2
		if off+2 > len(buf) {
			break
		}
		buf[off] = byte(entry)
		buf[off+1] = byte(entry >> 8)
	}
	// Clusters 0 and 1 carry the media-descriptor/end-of-chain reserved
	// values every FAT16 volume starts its table with.
	buf[0], buf[1] = bpb.MediaType, 0xFF
	buf[2], buf[3] = 0xFF, 0xFF

	for n := uint8(0); n < bpb.NumFATs; n++ {
		copy(image[fatBase+uint64(n)*fatBytes:], buf)
	}
}

func writeRootDir(image []byte, partBase uint64, bpb fat.BiosParameterBlock, files []FileEntry, fileClusters map[string]uint32) {
	rootBase := partBase + uint64(bpb.RootDirLBA())*fat.SectorSize
	off := rootBase
	for _, f := range files {
		short, ext := fat.ShortName83(f.Name)
		cluster := fileClusters[f.Name]
		entry := fat.DirEntry{
			ShortName:        short,
			ShortExt:         ext,
			Attr:             fat.AttrArchive,
			FirstClusterHigh: uint16(cluster >> 16),
			FirstClusterLow:  uint16(cluster),
			FileSize:         uint32(len(f.Data)),
		}
		copy(image[off:off+fat.DirEntrySize], entry.Marshal())
		off += fat.DirEntrySize
	}
}

func writeDataRegion(image []byte, partBase uint64, bpb fat.BiosParameterBlock, dataRegion []byte) {
	dataBase := partBase + uint64(bpb.FirstDataSector())*fat.SectorSize
	copy(image[dataBase:], dataRegion)
}

// writeImageFile creates path, preallocates it to len(image) bytes, and
// writes image through a memory-mapped view rather than a WriteAt loop —
// the zero-copy path github.com/edsrzf/mmap-go exists for.
func writeImageFile(path string, image []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("diskimage: create %s: %w", path, err)
	}
	defer f.Close()

	if err := platform.Preallocate(f.Fd(), int64(len(image))); err != nil {
		// Fallocate can fail on filesystems that don't support it
		// (tmpfs, some network mounts); fall back to a plain truncate,
		// which still gets the file to the right size, just possibly
		// sparse.
		if terr := f.Truncate(int64(len(image))); terr != nil {
			return 0, fmt.Errorf("diskimage: size %s: %w", path, terr)
		}
	} else if err := f.Truncate(int64(len(image))); err != nil {
		return 0, fmt.Errorf("diskimage: size %s: %w", path, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("diskimage: mmap %s: %w", path, err)
	}
	defer m.Unmap()

	n := copy(m, image)
	if err := m.Flush(); err != nil {
		return 0, fmt.Errorf("diskimage: flush %s: %w", path, err)
	}

	fmt.Fprintf(os.Stderr, "diskimage: wrote %s to %s\n", humanize.Bytes(uint64(n)), path)
	return int64(n), nil
}
