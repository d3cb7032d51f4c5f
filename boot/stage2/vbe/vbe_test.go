package vbe

import "testing"

func usableBlock(width, height uint16, bpp uint8) ModeInfoBlock {
	return ModeInfoBlock{
		Attributes:   requiredAttrMask,
		Width:        width,
		Height:       height,
		BitsPerPixel: bpp,
		MemoryModel:  packedPixelModel,
	}
}

func TestIsUsableRejectsBankedOrTextModes(t *testing.T) {
	text := ModeInfoBlock{Attributes: 0x01, MemoryModel: packedPixelModel}
	if text.IsUsable() {
		t.Error("text-mode attrs should not be usable")
	}

	banked := ModeInfoBlock{Attributes: 0x10, MemoryModel: packedPixelModel}
	if banked.IsUsable() {
		t.Error("a mode lacking the linear-framebuffer bit should not be usable")
	}

	planar := ModeInfoBlock{Attributes: requiredAttrMask, MemoryModel: 1}
	if planar.IsUsable() {
		t.Error("a planar memory model should not be usable")
	}
}

func TestIsUsableAcceptsPackedAndDirectColor(t *testing.T) {
	packed := usableBlock(1024, 768, 32)
	if !packed.IsUsable() {
		t.Error("packed-pixel linear mode should be usable")
	}

	direct := packed
	direct.MemoryModel = directColorModel
	if !direct.IsUsable() {
		t.Error("direct-color linear mode should be usable")
	}
}

func TestEnumerateChoosesClosestResolution(t *testing.T) {
	candidates := []Candidate{
		{ModeID: 0x100, Info: usableBlock(640, 480, 32)},
		{ModeID: 0x101, Info: usableBlock(800, 600, 32)},
		{ModeID: 0x102, Info: usableBlock(1920, 1080, 32)},
	}

	got, ok := Enumerate(candidates, 1024, 768, 24)
	if !ok {
		t.Fatal("expected a usable candidate")
	}
	if got.ModeID != 0x101 {
		t.Errorf("ModeID = %#x, want %#x (800x600 is closest to 1024x768)", got.ModeID, 0x101)
	}
}

func TestEnumerateFiltersByBitsPerPixel(t *testing.T) {
	candidates := []Candidate{
		{ModeID: 0x100, Info: usableBlock(1024, 768, 16)},
	}
	if _, ok := Enumerate(candidates, 1024, 768, 24); ok {
		t.Error("a 16bpp mode should be filtered out by a 24bpp minimum")
	}
}

func TestEnumerateNoUsableCandidates(t *testing.T) {
	candidates := []Candidate{
		{ModeID: 0x3, Info: ModeInfoBlock{Attributes: 0, MemoryModel: 1}},
	}
	if _, ok := Enumerate(candidates, 800, 600, 24); ok {
		t.Error("expected Enumerate to report no usable candidate")
	}
}
