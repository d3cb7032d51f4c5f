package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes a disk image build as a whole, the optional richer
// alternative to passing every input as a flag: a single image.yaml a
// build system can check in and diff. Its shape follows the knobs
// original_source's bootloader/qconfig.cfg exposes (a boot-code stage,
// stage-3, a kernel, and an optional initfs; stage-2 has no field here), plus
// the image-level choices (volume label, whether to xz-compress the
// initfs) that file never had to make because it only ever described a
// volume someone else had already formatted.
type Manifest struct {
	VolumeLabel string `yaml:"volume_label"`
	BootCode    string `yaml:"boot_code"`
	Stage3      string `yaml:"stage3"`
	Kernel      string `yaml:"kernel"`
	Initfs      string `yaml:"initfs"`
	Compress    bool   `yaml:"compress_initfs"`
}

// LoadManifest reads and parses a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qimg: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("qimg: parse manifest %s: %w", path, err)
	}
	return &m, nil
}
