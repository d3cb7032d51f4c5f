package fat

// lastLongEntry marks the Order byte of the long-name fragment holding the
// last (highest-ordinal) chunk of characters; it is the first fragment
// stage-1 encounters walking a directory, since fragments are stored on
// disk from highest ordinal down to 1, immediately ahead of the 8.3 entry
// they belong to.
const lastLongEntry = 0x40

// ordinalMask strips the lastLongEntry flag off an Order byte.
const ordinalMask = 0x1F

// charsPerLFNEntry is the number of UTF-16 code units packed into one
// 32-byte long-name fragment (5 + 6 + 2).
const charsPerLFNEntry = 13

// LongNameEntry is one decoded long-file-name directory-entry fragment.
type LongNameEntry struct {
	Order    uint8
	Name1    [5]uint16
	Attr     Attr
	Checksum uint8
	Name2    [6]uint16
	Name3    [2]uint16
}

// Ordinal returns the fragment's 1-based position within the name (1 is
// closest to the 8.3 entry, i.e. holds the first characters of the name).
func (e LongNameEntry) Ordinal() uint8 { return e.Order & ordinalMask }

// IsLast reports whether this is the highest-ordinal fragment of its name.
func (e LongNameEntry) IsLast() bool { return e.Order&lastLongEntry != 0 }

// ParseLongNameEntry decodes a 32-byte long-file-name fragment. raw must
// be at least DirEntrySize bytes and IsLongNameEntry(raw) must hold.
func ParseLongNameEntry(raw []byte) LongNameEntry {
	var e LongNameEntry
	e.Order = raw[0]
	for i := 0; i < 5; i++ {
		e.Name1[i] = le16(raw, 1+2*i)
	}
	e.Attr = Attr(raw[11])
	e.Checksum = raw[13]
	for i := 0; i < 6; i++ {
		e.Name2[i] = le16(raw, 14+2*i)
	}
	for i := 0; i < 2; i++ {
		e.Name3[i] = le16(raw, 28+2*i)
	}
	return e
}

// chars appends this fragment's 13 UTF-16 code units, in order, to dst.
func (e LongNameEntry) chars(dst []uint16) []uint16 {
	dst = append(dst, e.Name1[:]...)
	dst = append(dst, e.Name2[:]...)
	dst = append(dst, e.Name3[:]...)
	return dst
}

// AccumulateLFN reassembles a long file name from its fragments. entries
// must be given in the order a directory walk encounters them on disk —
// highest ordinal (IsLast() true) first, descending to ordinal 1 — the
// same accumulate-then-flush loop original_source's directory walker runs
// before it reaches the short 8.3 entry the fragments describe.
//
// A short-filename-only entry has no fragments at all, so an empty or nil
// entries slice is a normal input and yields the empty string.
func AccumulateLFN(entries []LongNameEntry) string {
	if len(entries) == 0 {
		return ""
	}

	units := make([]uint16, 0, len(entries)*charsPerLFNEntry)
	// Fragments arrive highest-ordinal-first; the name reads low-ordinal
	// first, so walk the slice back to front.
	for i := len(entries) - 1; i >= 0; i-- {
		units = entries[i].chars(units)
	}

	// Each fragment null-pads (then 0xFFFF-pads) any unused character
	// slots; truncate at the first terminator.
	for i, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			units = units[:i]
			break
		}
	}

	return utf16ToString(units)
}

// utf16ToString decodes units as UTF-16 into a string. Long file names on
// a FAT volume stage-1 cares about (the stage-2 image's own name) never
// use characters outside the Basic Multilingual Plane, so surrogate pairs
// are not decoded: every surrogate code unit, paired or not, is emitted as
// the Unicode replacement character instead of silently corrupting the name.
func utf16ToString(units []uint16) string {
	const replacementChar = 0xFFFD
	runes := make([]rune, 0, len(units))
	for _, u := range units {
		if u >= 0xD800 && u <= 0xDFFF {
			runes = append(runes, replacementChar)
			continue
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
