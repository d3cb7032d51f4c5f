package diskimage

// MBR partition-table layout, grounded on original_source's
// kernel/src/vfs/partitioning/mbr.rs: a 16-byte packed Entry repeated four
// times starting at offset 446, following 440 bytes of bootstrap code and
// a 4-byte disk signature and 2 reserved bytes, closed out by the 0xAA55
// boot signature at offset 510.
const (
	mbrBootstrapSize  = 440
	mbrEntrySize      = 16
	mbrEntryCount     = 4
	mbrEntriesOffset  = 446
	mbrSignatureValue = 0xAA55

	// readOnlySignature is the alternate signature value
	// original_source's Header recognizes for a read-only disk; this
	// builder never produces one, but Entry.Marshal's sibling parser
	// (not needed by this package, which only writes images) would need
	// to accept it.
	readOnlySignature = 0xA5A5
)

// PartitionType is the MBR partition-type byte; this builder only ever
// emits one partition, typed as FAT16 with LBA addressing (the type DOS
// and every later BIOS/UEFI loader recognizes for a FAT16 volume larger
// than 32 MiB).
type PartitionType uint8

const PartitionTypeFAT16LBA PartitionType = 0x0E

// MBREntry is one 16-byte partition-table slot.
type MBREntry struct {
	Bootable    bool
	Type        PartitionType
	StartLBA    uint32
	SectorCount uint32
}

// driveAttributes packs Bootable into the single byte original_source's
// Entry calls drive_attributes (0x80 marks the active/bootable partition,
// 0x00 otherwise — any other value is reserved and never produced here).
func (e MBREntry) driveAttributes() byte {
	if e.Bootable {
		return 0x80
	}
	return 0x00
}

// Marshal serializes e into its 16-byte on-disk form. The three CHS
// fields original_source's Entry carries (chs_partition_start(_high),
// chs_partition_end(_high)) are written as the standard "ignore me, use
// LBA" filler (0xFFFFFF in CHS-packed form), since every consumer of this
// image (stage-1, QEMU, a real BIOS in LBA mode) reads lba_start/
// total_sectors instead.
func (e MBREntry) Marshal() []byte {
	raw := make([]byte, mbrEntrySize)
	raw[0] = e.driveAttributes()
	raw[1], raw[2], raw[3] = 0xFF, 0xFF, 0xFF
	raw[4] = byte(e.Type)
	raw[5], raw[6], raw[7] = 0xFF, 0xFF, 0xFF
	le32put(raw, 8, e.StartLBA)
	le32put(raw, 12, e.SectorCount)
	return raw
}

// MBRHeader is the full 512-byte master boot record.
type MBRHeader struct {
	Bootstrap []byte // up to mbrBootstrapSize bytes of stage-1's boot code
	DiskID    uint32
	Entries   [mbrEntryCount]MBREntry
}

// Marshal serializes h into a SectorSize-byte MBR sector.
func (h MBRHeader) Marshal() []byte {
	sector := make([]byte, 512)
	copy(sector[:mbrBootstrapSize], h.Bootstrap)
	le32put(sector, mbrBootstrapSize, h.DiskID)
	// bytes at mbrBootstrapSize+4..mbrBootstrapSize+6 are the reserved
	// "optional" field original_source carries; left zero.
	for i, e := range h.Entries {
		copy(sector[mbrEntriesOffset+i*mbrEntrySize:], e.Marshal())
	}
	le16put(sector, 510, mbrSignatureValue)
	return sector
}

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
