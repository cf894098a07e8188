package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	sdicom "github.com/suyashkumar/dicom"
	stag "github.com/suyashkumar/dicom/pkg/tag"
)

const (
	preambleLength = 128
	part10Prefix   = "DICM"

	// ImplementationClassUID identifies files written by this archive.
	ImplementationClassUID = "1.2.826.0.1.3680043.10.1082.1"
)

// StripPart10Header removes the DICOM Part 10 preamble and File Meta Information
// and returns the dataset bytes together with the transfer syntax declared in
// the meta group.
//
// DICOM Part 10 files contain:
//   - 128 byte preamble
//   - 4 byte "DICM" prefix
//   - File Meta Information elements (group 0x0002, always Explicit VR LE)
//   - Dataset
func StripPart10Header(data []byte) ([]byte, string, error) {
	if len(data) < preambleLength+4 {
		return nil, "", fmt.Errorf("data too short to be DICOM Part 10 (need at least 132 bytes, got %d)", len(data))
	}

	if string(data[preambleLength:preambleLength+4]) != part10Prefix {
		return nil, "", fmt.Errorf("not a valid DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	offset := preambleLength + 4
	var transferSyntaxUID string

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset:])
		element := binary.LittleEndian.Uint16(data[offset+2:])
		if group != 0x0002 {
			break
		}

		vr := string(data[offset+4 : offset+6])
		var length int
		if isLongVR(vr) {
			if offset+12 > len(data) {
				return nil, "", fmt.Errorf("truncated file meta element (0002,%04x)", element)
			}
			length = int(binary.LittleEndian.Uint32(data[offset+8:]))
			offset += 12
		} else {
			length = int(binary.LittleEndian.Uint16(data[offset+6:]))
			offset += 8
		}
		if offset+length > len(data) {
			return nil, "", fmt.Errorf("truncated file meta element (0002,%04x)", element)
		}

		if element == TagTransferSyntaxUID.Element {
			transferSyntaxUID = strings.TrimRight(string(data[offset:offset+length]), "\x00 ")
		}
		offset += length
	}

	if transferSyntaxUID != "" {
		slog.Debug("Found Transfer Syntax UID in File Meta Information",
			"transfer_syntax", transferSyntaxUID,
			"dataset_start_offset", offset)
	}

	if offset >= len(data) {
		return nil, "", fmt.Errorf("failed to find dataset after File Meta Information")
	}

	return data[offset:], transferSyntaxUID, nil
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
//
// Returns true if the data contains the 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < preambleLength+4 {
		return false
	}
	return string(data[preambleLength:preambleLength+4]) == part10Prefix
}

// ParsePart10 decodes a complete Part 10 file held in memory, honouring the
// transfer syntax from its meta group. Bytes without a preamble are parsed as
// a bare Explicit VR Little Endian dataset.
func ParsePart10(data []byte) (*Dataset, string, error) {
	if !HasPart10Header(data) {
		ds, err := ParseDataset(data)
		return ds, TransferSyntaxExplicitVRLittleEndian, err
	}
	body, ts, err := StripPart10Header(data)
	if err != nil {
		return nil, "", err
	}
	if ts == "" {
		ts = TransferSyntaxExplicitVRLittleEndian
	}
	ds, err := ParseDatasetWithTransferSyntax(body, ts)
	return ds, ts, err
}

// WritePart10 wraps ds in a Part 10 envelope. The dataset body is written with
// the given transfer syntax, which must be one of the little endian syntaxes
// this package encodes.
func WritePart10(ds *Dataset, transferSyntaxUID string) ([]byte, error) {
	if transferSyntaxUID == "" {
		transferSyntaxUID = TransferSyntaxExplicitVRLittleEndian
	}
	body, err := EncodeDatasetWithTransferSyntax(ds.withoutMeta(), transferSyntaxUID)
	if err != nil {
		return nil, err
	}
	header := Part10Header(ds.GetString(TagSOPClassUID), ds.GetString(TagSOPInstanceUID), transferSyntaxUID)
	return append(header, body...), nil
}

// Part10Header returns the preamble, prefix and meta group that precede a
// dataset body already encoded in transferSyntaxUID. Received bytes can be
// filed unchanged by writing this header in front of them.
func Part10Header(sopClassUID, sopInstanceUID, transferSyntaxUID string) []byte {
	meta := NewDataset()
	meta.AddElement(TagFileMetaInformationVersion, VR_OB, []byte{0x00, 0x01})
	meta.AddElement(TagMediaStorageSOPClassUID, VR_UI, sopClassUID)
	meta.AddElement(TagMediaStorageSOPInstanceUID, VR_UI, sopInstanceUID)
	meta.AddElement(TagTransferSyntaxUID, VR_UI, transferSyntaxUID)
	meta.AddElement(TagImplementationClassUID, VR_UI, ImplementationClassUID)
	metaBytes := meta.EncodeDataset()

	var buf bytes.Buffer
	buf.Write(make([]byte, preambleLength))
	buf.WriteString(part10Prefix)
	groupLength := NewDataset()
	groupLength.AddElement(TagFileMetaInformationGroupLength, VR_UL, uint32(len(metaBytes)))
	buf.Write(groupLength.EncodeDataset())
	buf.Write(metaBytes)
	return buf.Bytes()
}

func (d *Dataset) withoutMeta() *Dataset {
	out := NewDataset()
	for tag, el := range d.Elements {
		if tag.Group != 0x0002 {
			out.Elements[tag] = el
		}
	}
	return out
}

// ReadPart10File reads a Part 10 file from disk with the suyashkumar/dicom
// parser, skipping pixel data, and converts it into a Dataset. It accepts
// every transfer syntax that parser understands, which makes it the entry
// point for bulk imports of files produced elsewhere.
func ReadPart10File(path string) (*Dataset, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, "", err
	}

	parsed, err := sdicom.Parse(f, info.Size(), nil, sdicom.SkipPixelData())
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", path, err)
	}

	ds := NewDataset()
	var ts string
	for _, el := range parsed.Elements {
		if el.Tag == stag.TransferSyntaxUID {
			if v, ok := el.Value.GetValue().([]string); ok && len(v) > 0 {
				ts = strings.TrimRight(v[0], "\x00 ")
			}
		}
		if el.Tag.Group == 0x0002 || el.Tag == stag.PixelData {
			continue
		}
		convertElement(ds, el)
	}
	return ds, ts, nil
}

func convertElement(ds *Dataset, el *sdicom.Element) {
	tag := Tag{Group: el.Tag.Group, Element: el.Tag.Element}
	vr := el.RawValueRepresentation
	if vr == "" {
		vr = determineVR(tag)
	}

	switch v := el.Value.GetValue().(type) {
	case []string:
		parts := make([]string, len(v))
		for i, s := range v {
			parts[i] = strings.TrimRight(s, "\x00 ")
		}
		ds.AddElement(tag, vr, strings.Join(parts, "\\"))
	case []int:
		switch vr {
		case VR_US:
			if len(v) > 0 {
				ds.AddElement(tag, vr, uint16(v[0]))
			}
		case VR_UL:
			if len(v) > 0 {
				ds.AddElement(tag, vr, uint32(v[0]))
			}
		default:
			parts := make([]string, len(v))
			for i, n := range v {
				parts[i] = strconv.Itoa(n)
			}
			ds.AddElement(tag, VR_IS, strings.Join(parts, "\\"))
		}
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		ds.AddElement(tag, VR_DS, strings.Join(parts, "\\"))
	case []byte:
		ds.AddElement(tag, vr, v)
	case []*sdicom.SequenceItemValue:
		items := make([]*Dataset, 0, len(v))
		for _, item := range v {
			child := NewDataset()
			if elems, ok := item.GetValue().([]*sdicom.Element); ok {
				for _, ce := range elems {
					convertElement(child, ce)
				}
			}
			items = append(items, child)
		}
		ds.AddItems(tag, items...)
	}
}
