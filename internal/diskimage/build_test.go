package diskimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corigan01/quantumos/boot/stage1/fat"
)

// memDisk adapts a built image's bytes into a fat.Disk for read-back
// verification, the same fixture shape boot/stage1/fat's own tests use.
type memDisk struct {
	data   []byte
	offset uint32 // partition start LBA
}

func (d memDisk) ReadSector(lba uint32, dst []byte) error {
	off := int64(d.offset+lba) * fat.SectorSize
	copy(dst, d.data[off:off+fat.SectorSize])
	return nil
}

func TestBuildProducesReadableFAT16Image(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.img")

	cfg := Config{
		Path:     path,
		BootCode: []byte{0xEB, 0xFE}, // 2-byte infinite-loop stub
		Files: []FileEntry{
			{Name: "STAGE3.BIN", Data: bytesOf(5000, 0xAA)},
			{Name: "KERNEL.ELF", Data: bytesOf(20000, 0xBB)},
			{Name: "INITFS.IMG", Data: bytesOf(1000, 0xCC)},
		},
	}

	result, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.TotalSectors == 0 {
		t.Fatal("expected a non-zero total sector count")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if int64(len(raw)) != int64(result.TotalSectors)*fat.SectorSize {
		t.Fatalf("image file size = %d, want %d", len(raw), int64(result.TotalSectors)*fat.SectorSize)
	}

	if raw[510] != 0x55 || raw[511] != 0xAA {
		t.Fatalf("MBR missing 0xAA55 signature: got %02x %02x", raw[510], raw[511])
	}
	if raw[0] != 0xEB || raw[1] != 0xFE {
		t.Errorf("MBR bootstrap region = %02x %02x, want the supplied boot code", raw[0], raw[1])
	}

	disk := memDisk{data: raw, offset: defaultPartitionStartLBA}
	var bootSector [fat.SectorSize]byte
	if err := disk.ReadSector(0, bootSector[:]); err != nil {
		t.Fatalf("read BPB sector: %v", err)
	}
	bpb, err := fat.ParseBPB(bootSector[:])
	if err != nil {
		t.Fatalf("ParseBPB: %v", err)
	}
	if !bpb.IsFAT16() {
		t.Error("expected the built volume to be FAT16")
	}

	for _, f := range cfg.Files {
		entry, err := fat.FindFile(disk, bpb, f.Name)
		if err != nil {
			t.Fatalf("FindFile(%q): %v", f.Name, err)
		}
		if entry.FileSize != uint32(len(f.Data)) {
			t.Errorf("%s: FileSize = %d, want %d", f.Name, entry.FileSize, len(f.Data))
		}
		got, err := fat.ReadFile(disk, bpb, entry.FirstCluster(), entry.FileSize)
		if err != nil {
			t.Fatalf("ReadFile(%q): %v", f.Name, err)
		}
		if !bytesEqual(got, f.Data) {
			t.Errorf("%s: contents did not round-trip", f.Name)
		}
	}
}

func TestBuildRejectsOversizedBootCode(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Path:     filepath.Join(dir, "test.img"),
		BootCode: make([]byte, mbrBootstrapSize+1),
		Files: []FileEntry{
			{Name: "STAGE3.BIN", Data: []byte{1}},
			{Name: "KERNEL.ELF", Data: []byte{2}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for oversized boot code")
	}
}

func TestBuildRejectsDuplicateFileNames(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Path: filepath.Join(dir, "test.img"),
		Files: []FileEntry{
			{Name: "KERNEL.ELF", Data: []byte{1}},
			{Name: "KERNEL.ELF", Data: []byte{2}},
		},
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected an error for duplicate file names")
	}
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
