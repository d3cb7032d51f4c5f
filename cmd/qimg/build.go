package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"

	"github.com/corigan01/quantumos/internal/bootrecord"
	"github.com/corigan01/quantumos/internal/diskimage"
)

// BuildCmd assembles a bootable disk image from a manifest or from flags,
// grounded on magiskboot_go's Xz/compress.go for the optional initfs
// compression step (xz.NewWriter into a buffer, the same pattern the
// teacher repo uses for Xz()).
func BuildCmd(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to an image.yaml manifest (overrides the flags below)")
	bootCodePath := fs.String("boot-code", "", "path to stage-1's assembled boot sector code")
	stage3Path := fs.String("stage3", "", "path to the stage-3 binary")
	kernelPath := fs.String("kernel", "", "path to the kernel ELF image")
	initfsPath := fs.String("initfs", "", "path to the initfs image (optional)")
	compress := fs.Bool("compress-initfs", false, "xz-compress the initfs before embedding it")
	volumeLabel := fs.String("label", "QUANTUMOS", "FAT16 volume label")
	out := fs.String("out", "quantumos.img", "output disk image path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m := &Manifest{
		BootCode: *bootCodePath, Stage3: *stage3Path, Kernel: *kernelPath,
		Initfs: *initfsPath, Compress: *compress, VolumeLabel: *volumeLabel,
	}
	if *manifestPath != "" {
		loaded, err := LoadManifest(*manifestPath)
		if err != nil {
			return err
		}
		m = loaded
	}

	if m.Stage3 == "" || m.Kernel == "" {
		return fmt.Errorf("qimg build: both stage3 and kernel images are required")
	}

	var bootCode []byte
	if m.BootCode != "" {
		b, err := os.ReadFile(m.BootCode)
		if err != nil {
			return fmt.Errorf("qimg build: read boot code: %w", err)
		}
		bootCode = b
	}

	stage3, err := os.ReadFile(m.Stage3)
	if err != nil {
		return fmt.Errorf("qimg build: read stage3: %w", err)
	}
	kernel, err := os.ReadFile(m.Kernel)
	if err != nil {
		return fmt.Errorf("qimg build: read kernel: %w", err)
	}

	var initfs []byte
	if m.Initfs != "" {
		initfs, err = os.ReadFile(m.Initfs)
		if err != nil {
			return fmt.Errorf("qimg build: read initfs: %w", err)
		}
		if m.Compress {
			initfs, err = xzCompress(initfs)
			if err != nil {
				return fmt.Errorf("qimg build: compress initfs: %w", err)
			}
		}
	}

	files := []diskimage.FileEntry{
		{Name: "STAGE3.BIN", Data: stage3},
		{Name: "KERNEL.ELF", Data: kernel},
	}
	if initfs != nil {
		name := "INITFS.IMG"
		if m.Compress {
			name = "INITFS.XZ"
		}
		files = append(files, diskimage.FileEntry{Name: name, Data: initfs})
	}

	var handoff bootrecord.Stage16To32
	handoff.Stage32 = bootrecord.ByteRange{Len: uintptr(len(stage3))}
	handoff.Kernel = bootrecord.ByteRange{Len: uintptr(len(kernel))}
	if initfs != nil {
		handoff.Initfs = bootrecord.ByteRange{Len: uintptr(len(initfs))}
	}
	files = append(files, diskimage.FileEntry{Name: "HANDOFF.BIN", Data: bootrecord.EncodeHandoff(&handoff)})

	result, err := diskimage.Build(diskimage.Config{
		Path:        *out,
		VolumeLabel: m.VolumeLabel,
		BootCode:    bootCode,
		Files:       files,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "qimg: built %s (%d sectors, %d files)\n", *out, result.TotalSectors, len(files))
	return nil
}

// xzCompress matches magiskboot_go's Xz(): write the whole payload through
// an xz.Writer into an in-memory buffer and return the compressed bytes.
func xzCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xzDecompress is inspect's counterpart, reading an embedded INITFS.XZ
// back out for size reporting.
func xzDecompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
