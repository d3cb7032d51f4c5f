package fat

import (
	"testing"
)

// memDisk is an in-memory Disk backed by a flat byte slice, addressed in
// fixed-size sectors — enough to drive every code path in this package
// without real hardware or an image file.
type memDisk struct {
	sectorSize int
	data       []byte
}

func newMemDisk(sectors, sectorSize int) *memDisk {
	return &memDisk{sectorSize: sectorSize, data: make([]byte, sectors*sectorSize)}
}

func (d *memDisk) ReadSector(lba uint32, dst []byte) error {
	off := int(lba) * d.sectorSize
	copy(dst, d.data[off:off+d.sectorSize])
	return nil
}

func (d *memDisk) sector(lba uint32) []byte {
	off := int(lba) * d.sectorSize
	return d.data[off : off+d.sectorSize]
}

// buildBPB writes a minimal, valid FAT16 BPB into sector 0 of d and returns
// the decoded struct.
func buildBPB(t *testing.T, d *memDisk, reservedSectors uint16, numFATs uint8, fatSectors uint16, rootEntries uint16, sectorsPerCluster uint8, totalSectors uint16) BiosParameterBlock {
	t.Helper()
	sec := d.sector(0)
	sec[0] = 0xEB
	sec[1] = 0x3C
	sec[2] = 0x90
	copy(sec[3:11], "QOSBOOT ")
	putLE16(sec, 11, 512)
	sec[13] = sectorsPerCluster
	putLE16(sec, 14, reservedSectors)
	sec[16] = numFATs
	putLE16(sec, 17, rootEntries)
	putLE16(sec, 19, totalSectors)
	sec[21] = 0xF8
	putLE16(sec, 22, fatSectors)
	putLE16(sec, 24, 63)
	putLE16(sec, 26, 255)
	putLE32(sec, 28, 0)
	putLE32(sec, 32, 0)
	sec[36] = 0x80
	sec[38] = 0x29
	putLE32(sec, 39, 0xDEADBEEF)
	copy(sec[43:54], "NO NAME    ")
	copy(sec[54:62], "FAT16   ")
	putLE16(sec, 510, BootSignature)

	bpb, err := ParseBPB(sec)
	if err != nil {
		t.Fatalf("ParseBPB: %v", err)
	}
	return bpb
}

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func setFATEntry(d *memDisk, bpb BiosParameterBlock, n uint32, value uint16) {
	fatByteOffset := n * 2
	sectorsIn := fatByteOffset / uint32(bpb.BytesPerSector)
	offInSector := fatByteOffset % uint32(bpb.BytesPerSector)
	sec := d.sector(uint32(bpb.ReservedSectors) + sectorsIn)
	putLE16(sec, int(offInSector), value)
}

// writeShortEntry writes an 8.3 entry at the given sector/offset.
func writeShortEntry(sec []byte, off int, name [8]byte, ext [3]byte, attr Attr, cluster uint32, size uint32) {
	raw := sec[off : off+DirEntrySize]
	copy(raw[0:8], name[:])
	copy(raw[8:11], ext[:])
	raw[11] = byte(attr)
	putLE16(raw, 20, uint16(cluster>>16))
	putLE16(raw, 26, uint16(cluster))
	putLE32(raw, 28, size)
}

// writeLFNEntry writes one long-name fragment holding up to 13 runes of
// name starting at nameOffset, with the given 1-based ordinal.
func writeLFNEntry(sec []byte, off int, name []rune, nameOffset int, ordinal uint8, last bool, checksum uint8) {
	raw := sec[off : off+DirEntrySize]
	order := ordinal
	if last {
		order |= lastLongEntry
	}
	raw[0] = order
	raw[11] = byte(AttrLongName)
	raw[13] = checksum

	units := make([]uint16, charsPerLFNEntry)
	for i := range units {
		units[i] = 0xFFFF
	}
	for i := 0; i < charsPerLFNEntry; i++ {
		srcIdx := nameOffset + i
		switch {
		case srcIdx < len(name):
			units[i] = uint16(name[srcIdx])
		case srcIdx == len(name):
			units[i] = 0x0000
		default:
			// already 0xFFFF padding
		}
	}

	for i := 0; i < 5; i++ {
		putLE16(raw, 1+2*i, units[i])
	}
	for i := 0; i < 6; i++ {
		putLE16(raw, 14+2*i, units[5+i])
	}
	for i := 0; i < 2; i++ {
		putLE16(raw, 28+2*i, units[11+i])
	}
}

func TestParseBPBRejectsBadSignature(t *testing.T) {
	d := newMemDisk(64, 512)
	sec := d.sector(0)
	sec[0] = 0xEB
	if _, err := ParseBPB(sec); err == nil {
		t.Fatal("expected ParseBPB to reject a zeroed sector")
	}
}

func TestParseBPBGeometry(t *testing.T) {
	d := newMemDisk(4096, 512)
	bpb := buildBPB(t, d, 1, 2, 32, 512, 4, 4096)

	if got, want := bpb.RootDirSectors(), uint32(32); got != want {
		t.Errorf("RootDirSectors() = %d, want %d", got, want)
	}
	// reserved(1) + numFATs(2)*fatSectors(32) = 65
	if got, want := bpb.RootDirLBA(), uint32(65); got != want {
		t.Errorf("RootDirLBA() = %d, want %d", got, want)
	}
	if got, want := bpb.FirstDataSector(), uint32(65+32); got != want {
		t.Errorf("FirstDataSector() = %d, want %d", got, want)
	}
	if got, want := bpb.ClusterLBA(2), bpb.FirstDataSector(); got != want {
		t.Errorf("ClusterLBA(2) = %d, want %d", got, want)
	}
}

func TestWalkChainStopsAtEndOfChain(t *testing.T) {
	d := newMemDisk(4096, 512)
	bpb := buildBPB(t, d, 1, 2, 32, 512, 1, 4096)

	setFATEntry(d, bpb, 2, 5)
	setFATEntry(d, bpb, 5, 9)
	setFATEntry(d, bpb, 9, fatEntryEOCMin)

	var got []uint32
	if err := WalkChain(d, bpb, 2, func(c uint32) bool {
		got = append(got, c)
		return true
	}); err != nil {
		t.Fatalf("WalkChain: %v", err)
	}

	want := []uint32{2, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cluster[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWalkChainErrorsOnFreeCluster(t *testing.T) {
	d := newMemDisk(4096, 512)
	bpb := buildBPB(t, d, 1, 2, 32, 512, 1, 4096)
	setFATEntry(d, bpb, 2, fatEntryFree)

	err := WalkChain(d, bpb, 2, func(uint32) bool { return true })
	if err == nil {
		t.Fatal("expected an error walking into a free cluster")
	}
}

func TestAccumulateLFNReassemblesName(t *testing.T) {
	name := []rune("a-long-stage2-filename.bin")

	// Fragments are stored (and therefore discovered during a directory
	// walk) highest-ordinal-first.
	n := (len(name) + charsPerLFNEntry) / charsPerLFNEntry
	if n == 0 {
		n = 1
	}

	sec := make([]byte, 512)
	frags := make([]LongNameEntry, 0, n)
	for ord := n; ord >= 1; ord-- {
		off := (ord - 1) * DirEntrySize
		writeLFNEntry(sec, off, name, (ord-1)*charsPerLFNEntry, uint8(ord), ord == n, 0)
		frags = append(frags, ParseLongNameEntry(sec[off:off+DirEntrySize]))
	}

	got := AccumulateLFN(frags)
	if got != string(name) {
		t.Errorf("AccumulateLFN() = %q, want %q", got, string(name))
	}
}

func TestAccumulateLFNEmpty(t *testing.T) {
	if got := AccumulateLFN(nil); got != "" {
		t.Errorf("AccumulateLFN(nil) = %q, want empty", got)
	}
}

func TestFindFileResolvesLongName(t *testing.T) {
	d := newMemDisk(4096, 512)
	bpb := buildBPB(t, d, 1, 2, 4, 16, 1, 4096)

	sec := d.sector(bpb.RootDirLBA())

	longName := []rune("stage2-loader.bin")
	writeLFNEntry(sec, 0, longName, charsPerLFNEntry, 2, true, 0)
	writeLFNEntry(sec, DirEntrySize, longName, 0, 1, false, 0)

	var shortName [8]byte
	copy(shortName[:], "STAGE2~1")
	var ext [3]byte
	copy(ext[:], "BIN")
	writeShortEntry(sec, 2*DirEntrySize, shortName, ext, 0, 10, 4096)

	setFATEntry(d, bpb, 10, fatEntryEOCMin)

	entry, err := FindFile(d, bpb, "/stage2-loader.bin")
	if err != nil {
		t.Fatalf("FindFile: %v", err)
	}
	if entry.FirstCluster() != 10 {
		t.Errorf("FirstCluster() = %d, want 10", entry.FirstCluster())
	}
	if entry.FileSize != 4096 {
		t.Errorf("FileSize = %d, want 4096", entry.FileSize)
	}
}

func TestFindFileMissing(t *testing.T) {
	d := newMemDisk(4096, 512)
	bpb := buildBPB(t, d, 1, 2, 4, 16, 1, 4096)

	if _, err := FindFile(d, bpb, "/nope.bin"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
