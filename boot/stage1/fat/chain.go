package fat

import "fmt"

// Disk is the raw sector-read contract stage-1 needs. On real hardware it
// is backed by INT 13h extended reads (LBA addressing); host-side tests
// and internal/diskimage back it with a plain byte slice.
type Disk interface {
	// ReadSector reads one BPB.BytesPerSector-sized sector at the given
	// LBA (relative to the start of the volume) into dst.
	ReadSector(lba uint32, dst []byte) error
}

// fatEntryFree, fatEntryBad, and fatEntryEOCMin classify a raw FAT16 table
// entry, per the FAT specification's reserved cluster values.
const (
	fatEntryFree   = 0x0000
	fatEntryBad    = 0xFFF7
	fatEntryEOCMin = 0xFFF8
)

// IsEndOfChain reports whether entry marks the end of a FAT16 cluster
// chain.
func IsEndOfChain(entry uint16) bool { return entry >= fatEntryEOCMin }

// readFATEntry returns the raw FAT16 table entry for cluster n.
func readFATEntry(disk Disk, bpb BiosParameterBlock, n uint32) (uint16, error) {
	const bytesPerEntry = 2
	fatByteOffset := n * bytesPerEntry
	sectorsIn := fatByteOffset / uint32(bpb.BytesPerSector)
	offsetInSector := fatByteOffset % uint32(bpb.BytesPerSector)

	lba := uint32(bpb.ReservedSectors) + sectorsIn
	var sector [SectorSize]byte
	if err := disk.ReadSector(lba, sector[:bpb.BytesPerSector]); err != nil {
		return 0, err
	}
	return le16(sector[:], int(offsetInSector)), nil
}

// WalkChain calls fn once per cluster in the chain starting at start, in
// order, stopping early if fn returns false. It returns an error if start
// names the bad-cluster marker or a FAT read fails.
func WalkChain(disk Disk, bpb BiosParameterBlock, start uint32, fn func(cluster uint32) bool) error {
	cluster := start
	for {
		if cluster == fatEntryBad {
			return fmt.Errorf("fat: chain references bad-cluster marker")
		}
		if !fn(cluster) {
			return nil
		}
		next, err := readFATEntry(disk, bpb, cluster)
		if err != nil {
			return err
		}
		if IsEndOfChain(next) {
			return nil
		}
		if next == fatEntryFree {
			return fmt.Errorf("fat: chain runs into an unallocated cluster")
		}
		cluster = uint32(next)
	}
}

// ReadFile reads every cluster of the chain starting at startCluster into
// a single buffer truncated to fileSize bytes, the same "follow clusters
// and load into buffer" loop original_source's stage-1 loader runs.
func ReadFile(disk Disk, bpb BiosParameterBlock, startCluster uint32, fileSize uint32) ([]byte, error) {
	clusterBytes := uint32(bpb.BytesPerSector) * uint32(bpb.SectorsPerCluster)
	buf := make([]byte, 0, fileSize)
	scratch := make([]byte, clusterBytes)

	var readErr error
	err := WalkChain(disk, bpb, startCluster, func(cluster uint32) bool {
		base := bpb.ClusterLBA(cluster)
		for s := uint32(0); s < uint32(bpb.SectorsPerCluster); s++ {
			sec := scratch[s*uint32(bpb.BytesPerSector) : (s+1)*uint32(bpb.BytesPerSector)]
			if rerr := disk.ReadSector(base+s, sec); rerr != nil {
				readErr = rerr
				return false
			}
		}
		buf = append(buf, scratch...)
		return uint32(len(buf)) < fileSize
	})
	if readErr != nil {
		return nil, readErr
	}
	if err != nil {
		return nil, err
	}
	if uint32(len(buf)) > fileSize {
		buf = buf[:fileSize]
	}
	return buf, nil
}
