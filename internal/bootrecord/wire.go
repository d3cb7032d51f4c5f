package bootrecord

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Host-side tooling (cmd/qimg inspect) needs to decode a Stage16To32 blob
// embedded by the image build step without linking against
// freestanding/asm code. The in-kernel and bootloader side keep the raw
// fixed-layout structs above as their actual ABI (asm producers/consumers
// can't link protobuf-go), but this file gives the host tool a real
// protobuf wire-format encoding of part of Stage16To32 (the stage-3,
// kernel and initfs ranges, the video mode id, width, height and bpp, the
// has-video-mode flag, and the memory regions; BootloaderStack, Stage64
// and the remaining VesaModeInfo fields are not carried), hand-encoded with
// protowire's low-level varint/tag primitives rather than a generated
// .pb.go — there is no .proto compiler step in this build, so the message
// is written the way a hand-rolled codec would be, the same encoding
// protoc-gen-go would itself produce for a message with these field
// numbers and wire types.
const (
	fieldMemRegionBase     = 1
	fieldMemRegionLength   = 2
	fieldMemRegionKind     = 3
	fieldMemRegionAcpiAttr = 4

	fieldStage32Range    = 1
	fieldKernelRange     = 2
	fieldInitfsRange     = 3
	fieldVideoModeID     = 4
	fieldVideoWidth      = 5
	fieldVideoHeight     = 6
	fieldVideoBPP        = 7
	fieldHasVideoMode    = 8
	fieldMemRegionsField = 9

	fieldRangeAddr = 1
	fieldRangeLen  = 2
)

func appendByteRange(b []byte, fieldNum protowire.Number, r ByteRange) []byte {
	inner := protowire.AppendTag(nil, fieldRangeAddr, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(r.Addr))
	inner = protowire.AppendTag(inner, fieldRangeLen, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(r.Len))

	b = protowire.AppendTag(b, fieldNum, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func appendMemRegion(b []byte, e E820Entry) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldMemRegionBase, protowire.VarintType)
	inner = protowire.AppendVarint(inner, e.Base)
	inner = protowire.AppendTag(inner, fieldMemRegionLength, protowire.VarintType)
	inner = protowire.AppendVarint(inner, e.Length)
	inner = protowire.AppendTag(inner, fieldMemRegionKind, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(e.Kind))
	inner = protowire.AppendTag(inner, fieldMemRegionAcpiAttr, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(e.AcpiAttr))

	b = protowire.AppendTag(b, fieldMemRegionsField, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

// EncodeHandoff renders s as a protobuf-wire-format byte slice, the format
// cmd/qimg embeds alongside the built image for its inspect subcommand.
func EncodeHandoff(s *Stage16To32) []byte {
	var b []byte
	b = appendByteRange(b, fieldStage32Range, s.Stage32)
	b = appendByteRange(b, fieldKernelRange, s.Kernel)
	b = appendByteRange(b, fieldInitfsRange, s.Initfs)

	b = protowire.AppendTag(b, fieldVideoModeID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.VideoMode.ModeID))
	b = protowire.AppendTag(b, fieldVideoWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.VideoMode.Info.Width))
	b = protowire.AppendTag(b, fieldVideoHeight, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.VideoMode.Info.Height))
	b = protowire.AppendTag(b, fieldVideoBPP, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.VideoMode.Info.BitsPerPixel))
	b = protowire.AppendTag(b, fieldHasVideoMode, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(s.HasVideoMode))

	for _, e := range s.MemRegions() {
		b = appendMemRegion(b, e)
	}
	return b
}

// DecodeHandoff parses the wire format EncodeHandoff produces back into a
// Stage16To32. It only understands the fields EncodeHandoff writes;
// unknown field numbers (a newer build's additions, read by an older
// qimg) are skipped rather than rejected, the usual protobuf forward-
// compatibility rule.
func DecodeHandoff(data []byte) (*Stage16To32, error) {
	var s Stage16To32
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("bootrecord: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldStage32Range && typ == protowire.BytesType:
			r, m, err := consumeByteRange(data)
			if err != nil {
				return nil, err
			}
			s.Stage32 = r
			data = data[m:]
		case num == fieldKernelRange && typ == protowire.BytesType:
			r, m, err := consumeByteRange(data)
			if err != nil {
				return nil, err
			}
			s.Kernel = r
			data = data[m:]
		case num == fieldInitfsRange && typ == protowire.BytesType:
			r, m, err := consumeByteRange(data)
			if err != nil {
				return nil, err
			}
			s.Initfs = r
			data = data[m:]
		case num == fieldVideoModeID && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("bootrecord: malformed video mode id")
			}
			s.VideoMode.ModeID = uint16(v)
			data = data[m:]
		case num == fieldVideoWidth && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			s.VideoMode.Info.Width = uint16(v)
			data = data[m:]
		case num == fieldVideoHeight && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			s.VideoMode.Info.Height = uint16(v)
			data = data[m:]
		case num == fieldVideoBPP && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			s.VideoMode.Info.BitsPerPixel = uint8(v)
			data = data[m:]
		case num == fieldHasVideoMode && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			s.HasVideoMode = protowire.DecodeBool(v)
			data = data[m:]
		case num == fieldMemRegionsField && typ == protowire.BytesType:
			e, m, err := consumeMemRegion(data)
			if err != nil {
				return nil, err
			}
			s.AddMemRegion(e)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("bootrecord: malformed field %d", num)
			}
			data = data[m:]
		}
	}
	return &s, nil
}

func consumeByteRange(data []byte) (ByteRange, int, error) {
	inner, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return ByteRange{}, 0, fmt.Errorf("bootrecord: malformed byte range")
	}
	var r ByteRange
	for len(inner) > 0 {
		num, typ, tn := protowire.ConsumeTag(inner)
		if tn < 0 {
			return ByteRange{}, 0, fmt.Errorf("bootrecord: malformed byte range tag")
		}
		inner = inner[tn:]
		switch {
		case num == fieldRangeAddr && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			r.Addr = uintptr(v)
			inner = inner[m:]
		case num == fieldRangeLen && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			r.Len = uintptr(v)
			inner = inner[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, inner)
			if m < 0 {
				return ByteRange{}, 0, fmt.Errorf("bootrecord: malformed byte range field")
			}
			inner = inner[m:]
		}
	}
	return r, n, nil
}

func consumeMemRegion(data []byte) (E820Entry, int, error) {
	inner, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return E820Entry{}, 0, fmt.Errorf("bootrecord: malformed memory region")
	}
	var e E820Entry
	for len(inner) > 0 {
		num, typ, tn := protowire.ConsumeTag(inner)
		if tn < 0 {
			return E820Entry{}, 0, fmt.Errorf("bootrecord: malformed memory region tag")
		}
		inner = inner[tn:]
		switch {
		case num == fieldMemRegionBase && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			e.Base = v
			inner = inner[m:]
		case num == fieldMemRegionLength && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			e.Length = v
			inner = inner[m:]
		case num == fieldMemRegionKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			e.Kind = MemRegionKind(v)
			inner = inner[m:]
		case num == fieldMemRegionAcpiAttr && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(inner)
			e.AcpiAttr = uint32(v)
			inner = inner[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, inner)
			if m < 0 {
				return E820Entry{}, 0, fmt.Errorf("bootrecord: malformed memory region field")
			}
			inner = inner[m:]
		}
	}
	return e, n, nil
}
