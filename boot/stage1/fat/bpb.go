// Package fat implements just enough of FAT16 to let stage-1 find and
// load stage-2 off the boot disk: BIOS Parameter Block parsing, 8.3 and
// long-file-name directory entries, and FAT chain walking. It is grounded
// on original_source's crates/fs/src/fatfs/bpb.rs (Bpb/Bpb16/Bpb32 field
// layout) and bios_boot/stage-1/src/filesystem/fat/mod.rs (the
// directory-walk loop that accumulates long-name entries before the short
// entry they belong to).
//
// Stage-1 never touches a real filesystem driver at runtime; it needs to
// read exactly one file (stage-2's image) off a FAT volume using nothing
// but raw LBA sector reads. This package is pure, host-testable Go so the
// logic can be unit tested; boot/stage1's assembly entry point calls into
// it with a Disk backed by INT 13h extended reads.
package fat

import "fmt"

// SectorSize is the only sector size this package supports; FAT12/16/32 all
// assume 512-byte sectors in practice, and the BPB field that names another
// size is rejected by ParseBPB.
const SectorSize = 512

// BootSignature is the value of the last two bytes of a valid boot sector.
const BootSignature = 0xAA55

// BiosParameterBlock is the fixed-layout header at the start of a FAT
// volume (or partition), covering the fields common to FAT12/16/32 plus the
// FAT16 extended fields this package needs (volume label, filesystem type
// string). FAT32's own extended BPB (fat_size, root_cluster, fs_info, ...)
// is not decoded: stage-2's image is small enough to live on a FAT16
// volume, so this package only ever needs to mount one.
type BiosParameterBlock struct {
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	MediaType         uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	DriveNumber uint8
	BootSig     uint8
	VolumeID    uint32
	VolumeLabel [11]byte
	FileSysType [8]byte
}

// le16 and le32 read a little-endian integer starting at offset off; every
// multi-byte BPB/directory-entry field on a FAT volume is stored
// little-endian regardless of host byte order.
func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func le32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// ParseBPB decodes the first sector of a FAT volume. sector must be at
// least SectorSize bytes. It rejects sectors whose jmp_boot byte isn't a
// short or near jump (0xEB or 0xE9), whose bytes-per-sector field isn't
// SectorSize, whose sectors-per-cluster field is zero, or that lack the
// 0xAA55 signature, mirroring the original bootloader's BPB validity check.
func ParseBPB(sector []byte) (BiosParameterBlock, error) {
	var bpb BiosParameterBlock
	if len(sector) < SectorSize {
		return bpb, fmt.Errorf("fat: sector too short: %d bytes", len(sector))
	}
	if sector[0] != 0xEB && sector[0] != 0xE9 {
		return bpb, fmt.Errorf("fat: bad jmp_boot byte 0x%02x", sector[0])
	}
	copy(bpb.OEMName[:], sector[3:11])
	bpb.BytesPerSector = le16(sector, 11)
	bpb.SectorsPerCluster = sector[13]
	bpb.ReservedSectors = le16(sector, 14)
	bpb.NumFATs = sector[16]
	bpb.RootEntryCount = le16(sector, 17)
	bpb.TotalSectors16 = le16(sector, 19)
	bpb.MediaType = sector[21]
	bpb.SectorsPerFAT16 = le16(sector, 22)
	bpb.SectorsPerTrack = le16(sector, 24)
	bpb.NumHeads = le16(sector, 26)
	bpb.HiddenSectors = le32(sector, 28)
	bpb.TotalSectors32 = le32(sector, 32)

	bpb.DriveNumber = sector[36]
	bpb.BootSig = sector[38]
	bpb.VolumeID = le32(sector, 39)
	copy(bpb.VolumeLabel[:], sector[43:54])
	copy(bpb.FileSysType[:], sector[54:62])

	if bpb.BytesPerSector != SectorSize {
		return bpb, fmt.Errorf("fat: unsupported bytes-per-sector %d", bpb.BytesPerSector)
	}
	if bpb.BytesPerSector == 0 || bpb.SectorsPerCluster == 0 {
		return bpb, fmt.Errorf("fat: zero bytes-per-sector or sectors-per-cluster")
	}
	if le16(sector, 510) != BootSignature {
		return bpb, fmt.Errorf("fat: missing 0xAA55 boot signature")
	}
	return bpb, nil
}

// TotalSectors returns the volume's total sector count, preferring the
// 16-bit field and falling back to the 32-bit one when it is too large to
// fit (the same disambiguation every FAT implementation applies).
func (b BiosParameterBlock) TotalSectors() uint32 {
	if b.TotalSectors16 != 0 {
		return uint32(b.TotalSectors16)
	}
	return b.TotalSectors32
}

// RootDirSectors returns the number of sectors occupied by the fixed-size
// FAT12/16 root directory (zero on FAT32, where the root directory is an
// ordinary cluster chain).
func (b BiosParameterBlock) RootDirSectors() uint32 {
	const dirEntrySize = 32
	bps := uint32(b.BytesPerSector)
	return (uint32(b.RootEntryCount)*dirEntrySize + bps - 1) / bps
}

// RootDirLBA returns the starting sector of the root directory, relative
// to the start of the volume.
func (b BiosParameterBlock) RootDirLBA() uint32 {
	return uint32(b.ReservedSectors) + uint32(b.NumFATs)*uint32(b.SectorsPerFAT16)
}

// FirstDataSector returns the starting sector of the data (cluster) region,
// relative to the start of the volume.
func (b BiosParameterBlock) FirstDataSector() uint32 {
	return b.RootDirLBA() + b.RootDirSectors()
}

// ClusterLBA returns the starting sector of cluster n (n >= 2; clusters 0
// and 1 are reserved, matching every FAT implementation's numbering).
func (b BiosParameterBlock) ClusterLBA(n uint32) uint32 {
	return b.FirstDataSector() + (n-2)*uint32(b.SectorsPerCluster)
}

// CountOfClusters returns the volume's data-region cluster count, the
// quantity the FAT specification uses to disambiguate FAT12 from FAT16
// from FAT32.
func (b BiosParameterBlock) CountOfClusters() uint32 {
	dataSectors := b.TotalSectors() - b.FirstDataSector()
	return dataSectors / uint32(b.SectorsPerCluster)
}

// le16put and le32put write a little-endian integer starting at offset off,
// the write-side counterpart of le16/le32 used by Marshal.
func le16put(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func le32put(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// Marshal serializes b into a SectorSize-byte boot sector at the same
// offsets ParseBPB reads, including the jmp_boot stub (a short jump over
// the BPB into byte offset 62, where a real boot sector's executable code
// would start) and the trailing 0xAA55 signature. It is Marshal's
// responsibility, not ParseBPB's, to also be able to round-trip: any sector
// produced here must parse back to an equal BiosParameterBlock.
func (b BiosParameterBlock) Marshal() []byte {
	sector := make([]byte, SectorSize)
	sector[0] = 0xEB
	sector[1] = 0x3C
	sector[2] = 0x90
	copy(sector[3:11], b.OEMName[:])
	le16put(sector, 11, b.BytesPerSector)
	sector[13] = b.SectorsPerCluster
	le16put(sector, 14, b.ReservedSectors)
	sector[16] = b.NumFATs
	le16put(sector, 17, b.RootEntryCount)
	le16put(sector, 19, b.TotalSectors16)
	sector[21] = b.MediaType
	le16put(sector, 22, b.SectorsPerFAT16)
	le16put(sector, 24, b.SectorsPerTrack)
	le16put(sector, 26, b.NumHeads)
	le32put(sector, 28, b.HiddenSectors)
	le32put(sector, 32, b.TotalSectors32)

	sector[36] = b.DriveNumber
	sector[38] = b.BootSig
	le32put(sector, 39, b.VolumeID)
	copy(sector[43:54], b.VolumeLabel[:])
	copy(sector[54:62], b.FileSysType[:])

	le16put(sector, 510, BootSignature)
	return sector
}

// IsFAT16 reports whether this volume's cluster count places it in the
// FAT16 range, per the FAT spec's cluster-count-based type test (FAT12 and
// FAT32 are not supported by this package: FAT12 because stage-2's image
// is always built onto a FAT16+ volume, FAT32 because its root directory
// and BPB extension aren't decoded here).
func (b BiosParameterBlock) IsFAT16() bool {
	n := b.CountOfClusters()
	return n >= 4085 && n < 65525
}
