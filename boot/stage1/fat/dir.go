package fat

import (
	"fmt"
	"strings"
)

// Entry is a fully resolved directory entry: its long name when one was
// present, its 8.3 entry always.
type Entry struct {
	LongName string
	Short    DirEntry
}

// Name returns the long name if the entry has one, otherwise the 8.3 name.
func (e Entry) Name() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.Short.ShortNameString()
}

// eachDirSector calls fn with every raw sector of a directory, be it the
// FAT16 root directory (a fixed run of sectors) or a subdirectory (an
// ordinary cluster chain). fn returning false stops the walk early.
func eachDirSector(disk Disk, bpb BiosParameterBlock, firstCluster uint32, isRoot bool, fn func(sector []byte) bool) error {
	buf := make([]byte, bpb.BytesPerSector)

	if isRoot {
		lba := bpb.RootDirLBA()
		for s := uint32(0); s < bpb.RootDirSectors(); s++ {
			if err := disk.ReadSector(lba+s, buf); err != nil {
				return err
			}
			if !fn(buf) {
				return nil
			}
		}
		return nil
	}

	return WalkChain(disk, bpb, firstCluster, func(cluster uint32) bool {
		base := bpb.ClusterLBA(cluster)
		cont := true
		for s := uint32(0); s < uint32(bpb.SectorsPerCluster) && cont; s++ {
			if err := disk.ReadSector(base+s, buf); err != nil {
				cont = false
				break
			}
			cont = fn(buf)
		}
		return cont
	})
}

// ReadDir lists every live entry in a directory, reassembling long names
// from their fragments as it walks — the accumulate-long-entries-until-a-
// short-entry-arrives loop original_source's directory walker runs. An
// isRoot directory is FAT16's fixed-size root; any other directory is
// named by its starting cluster.
func ReadDir(disk Disk, bpb BiosParameterBlock, firstCluster uint32, isRoot bool) ([]Entry, error) {
	var (
		entries []Entry
		pending []LongNameEntry
	)

	err := eachDirSector(disk, bpb, firstCluster, isRoot, func(sector []byte) bool {
		for off := 0; off+DirEntrySize <= len(sector); off += DirEntrySize {
			raw := sector[off : off+DirEntrySize]

			switch {
			case raw[0] == endOfDirectoryByte:
				return false
			case raw[0] == freeEntryMarker:
				pending = pending[:0]
				continue
			case IsLongNameEntry(raw):
				pending = append(pending, ParseLongNameEntry(raw))
				continue
			}

			short := ParseDirEntry(raw)
			if short.Attr&AttrVolumeID != 0 {
				pending = pending[:0]
				continue
			}

			name := AccumulateLFN(pending)
			entries = append(entries, Entry{LongName: name, Short: short})
			pending = pending[:0]
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// FindFile resolves a '/'-separated path (e.g. "boot/stage2.bin") starting
// at the FAT16 root directory, the same split-and-descend walk
// original_source's contains_file performs. It is case-insensitive, since
// 8.3 short names carry no case information.
func FindFile(disk Disk, bpb BiosParameterBlock, path string) (DirEntry, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	cluster := uint32(0)
	isRoot := true

	for i, part := range parts {
		entries, err := ReadDir(disk, bpb, cluster, isRoot)
		if err != nil {
			return DirEntry{}, err
		}

		var found *Entry
		for j := range entries {
			if strings.EqualFold(entries[j].Name(), part) {
				found = &entries[j]
				break
			}
		}
		if found == nil {
			return DirEntry{}, fmt.Errorf("fat: %q not found", part)
		}

		last := i == len(parts)-1
		if last {
			if found.Short.Attr&AttrDirectory != 0 {
				return DirEntry{}, fmt.Errorf("fat: %q is a directory", path)
			}
			return found.Short, nil
		}
		if found.Short.Attr&AttrDirectory == 0 {
			return DirEntry{}, fmt.Errorf("fat: %q is not a directory", part)
		}
		cluster = found.Short.FirstCluster()
		isRoot = false
	}
	return DirEntry{}, fmt.Errorf("fat: empty path")
}
