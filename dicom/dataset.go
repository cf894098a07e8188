package dicom

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

// Common transfer syntax UIDs
const (
	TransferSyntaxImplicitVRLittleEndian = "1.2.840.10008.1.2"
	TransferSyntaxExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

const undefinedLength = 0xFFFFFFFF

// Item and delimiter tags used inside sequences.
var (
	itemTag                 = Tag{Group: 0xFFFE, Element: 0xE000}
	itemDelimitationTag     = Tag{Group: 0xFFFE, Element: 0xE00D}
	sequenceDelimitationTag = Tag{Group: 0xFFFE, Element: 0xE0DD}
)

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Less orders tags by group, then element.
func (t Tag) Less(o Tag) bool {
	if t.Group != o.Group {
		return t.Group < o.Group
	}
	return t.Element < o.Element
}

// Element represents a DICOM data element.
//
// Value holds a string for text VRs, []byte for the binary OB/OW/UN family,
// uint16/uint32 for US/UL and []*Dataset for SQ.
type Element struct {
	Tag    Tag
	VR     string
	Length uint32
	Value  interface{}
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset, replacing any element with the same tag.
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	element := &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
	d.Elements[tag] = element
}

// AddItems adds a sequence element holding the given items.
func (d *Dataset) AddItems(tag Tag, items ...*Dataset) {
	d.AddElement(tag, VR_SQ, items)
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// Has reports whether the dataset contains tag.
func (d *Dataset) Has(tag Tag) bool {
	_, ok := d.Elements[tag]
	return ok
}

// Remove deletes tag from the dataset.
func (d *Dataset) Remove(tag Tag) {
	delete(d.Elements, tag)
}

// Len returns the number of top-level elements.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Elements)
}

// GetString returns a string value for a tag
func (d *Dataset) GetString(tag Tag) string {
	if d == nil {
		return ""
	}
	if element, exists := d.Elements[tag]; exists {
		if str, ok := element.Value.(string); ok {
			return strings.TrimSpace(str)
		}
	}
	return ""
}

// GetStrings returns a slice of string values for a tag
func (d *Dataset) GetStrings(tag Tag) []string {
	if d == nil {
		return nil
	}
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return nil
			}
			// Split by backslash for multiple values
			parts := strings.Split(v, "\\")
			result := make([]string, len(parts))
			for i, part := range parts {
				result[i] = strings.TrimSpace(part)
			}
			return result
		case []string:
			return v
		}
	}
	return nil
}

// GetItems returns the items of a sequence element.
func (d *Dataset) GetItems(tag Tag) []*Dataset {
	if d == nil {
		return nil
	}
	if element, exists := d.Elements[tag]; exists {
		if items, ok := element.Value.([]*Dataset); ok {
			return items
		}
	}
	return nil
}

// GetItem returns the first item of a sequence element, or nil.
func (d *Dataset) GetItem(tag Tag) *Dataset {
	items := d.GetItems(tag)
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// Tags returns the dataset's tags in ascending order.
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })
	return tags
}

// Merge overlays the elements of other onto d. Elements present in both take
// other's value.
func (d *Dataset) Merge(other *Dataset) {
	if other == nil {
		return
	}
	for tag, el := range other.Elements {
		d.Elements[tag] = el
	}
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset()
	if d == nil {
		return out
	}
	for tag, el := range d.Elements {
		cp := *el
		switch v := el.Value.(type) {
		case []*Dataset:
			items := make([]*Dataset, len(v))
			for i, item := range v {
				items[i] = item.Clone()
			}
			cp.Value = items
		case []byte:
			cp.Value = append([]byte(nil), v...)
		case []string:
			cp.Value = append([]string(nil), v...)
		}
		out.Elements[tag] = &cp
	}
	return out
}

// Subset returns a copy holding only the listed tags that d contains.
func (d *Dataset) Subset(tags []Tag) *Dataset {
	out := NewDataset()
	for _, tag := range tags {
		if el, ok := d.Elements[tag]; ok {
			cp := *el
			out.Elements[tag] = &cp
		}
	}
	return out
}

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	ds, _, err := parseElements(data, false, false)
	return ds, err
}

// ParseDatasetWithTransferSyntax parses a dataset using the provided transfer syntax.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	switch transferSyntaxUID {
	case TransferSyntaxImplicitVRLittleEndian:
		return parseImplicitVRDataset(data)
	default:
		return ParseDataset(data)
	}
}

func parseImplicitVRDataset(data []byte) (*Dataset, error) {
	ds, _, err := parseElements(data, true, false)
	return ds, err
}

// parseElements decodes elements until data is exhausted or, when inItem is
// set, until an item delimitation tag. It returns the bytes consumed.
func parseElements(data []byte, implicit, inItem bool) (*Dataset, int, error) {
	dataset := NewDataset()

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("truncated element header at offset %d", offset)
		}

		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		tag := Tag{Group: group, Element: element}

		if tag == itemDelimitationTag {
			if !inItem {
				return nil, 0, fmt.Errorf("unexpected item delimiter at offset %d", offset)
			}
			return dataset, offset + 8, nil
		}

		var (
			vr          string
			length      uint32
			valueOffset int
		)
		if implicit {
			vr = determineVR(tag)
			length = binary.LittleEndian.Uint32(data[offset+4 : offset+8])
			valueOffset = offset + 8
		} else {
			vr = string(data[offset+4 : offset+6])
			if isLongVR(vr) {
				// Long VR: Tag (4) + VR (2) + Reserved (2) + Length (4) = 12 bytes header
				if offset+12 > len(data) {
					return nil, 0, fmt.Errorf("truncated header for %s", tag)
				}
				length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
				valueOffset = offset + 12
			} else {
				// Short VR: Tag (4) + VR (2) + Length (2) = 8 bytes header
				length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
				valueOffset = offset + 8
			}
		}

		if length == undefinedLength {
			rest := data[valueOffset:]
			if vr == VR_SQ {
				items, n, err := parseSequence(rest, implicit, true)
				if err != nil {
					return nil, 0, fmt.Errorf("sequence %s: %w", tag, err)
				}
				dataset.AddItems(tag, items...)
				offset = valueOffset + n
				continue
			}
			// Encapsulated pixel data: keep the raw fragments.
			n, err := skipFragments(rest)
			if err != nil {
				return nil, 0, fmt.Errorf("encapsulated %s: %w", tag, err)
			}
			dataset.Elements[tag] = &Element{Tag: tag, VR: vr, Length: undefinedLength, Value: append([]byte(nil), rest[:n]...)}
			offset = valueOffset + n
			continue
		}

		if valueOffset+int(length) > len(data) {
			return nil, 0, fmt.Errorf("value of %s (%d bytes) exceeds remaining data", tag, length)
		}
		valueData := data[valueOffset : valueOffset+int(length)]

		if vr == VR_SQ {
			items, _, err := parseSequence(valueData, implicit, false)
			if err != nil {
				return nil, 0, fmt.Errorf("sequence %s: %w", tag, err)
			}
			dataset.AddItems(tag, items...)
		} else {
			dataset.Elements[tag] = &Element{Tag: tag, VR: vr, Length: length, Value: parseElementValue(vr, valueData)}
		}

		// Move to next element (including padding if odd length)
		nextOffset := valueOffset + int(length)
		if length%2 == 1 {
			nextOffset++
		}
		offset = nextOffset
	}

	if inItem {
		return nil, 0, fmt.Errorf("missing item delimiter")
	}
	return dataset, offset, nil
}

// parseSequence decodes sequence items. With undefined set it stops after the
// sequence delimitation tag; otherwise it consumes all of data.
func parseSequence(data []byte, implicit, undefined bool) ([]*Dataset, int, error) {
	var items []*Dataset
	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("truncated item header at offset %d", offset)
		}
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8

		switch tag {
		case sequenceDelimitationTag:
			return items, offset, nil
		case itemTag:
		default:
			return nil, 0, fmt.Errorf("unexpected tag %s in sequence", tag)
		}

		if length == undefinedLength {
			item, n, err := parseElements(data[offset:], implicit, true)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, item)
			offset += n
			continue
		}
		if offset+int(length) > len(data) {
			return nil, 0, fmt.Errorf("item length %d exceeds sequence", length)
		}
		item, _, err := parseElements(data[offset:offset+int(length)], implicit, false)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		offset += int(length)
	}
	if undefined {
		return nil, 0, fmt.Errorf("missing sequence delimiter")
	}
	return items, offset, nil
}

// skipFragments returns the length of an encapsulated fragment list up to and
// including its sequence delimiter.
func skipFragments(data []byte) (int, error) {
	offset := 0
	for offset+8 <= len(data) {
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8
		if tag == sequenceDelimitationTag {
			return offset, nil
		}
		if offset+int(length) > len(data) {
			return 0, fmt.Errorf("fragment length %d exceeds data", length)
		}
		offset += int(length)
	}
	return 0, fmt.Errorf("missing sequence delimiter")
}

func isLongVR(vr string) bool {
	switch vr {
	case VR_OB, VR_OD, VR_OF, VR_OL, VR_OW, VR_SQ, VR_UC, VR_UR, VR_UT, VR_UN, VR_OV, VR_SV, VR_UV:
		return true
	}
	return false
}

// parseElementValue converts raw value bytes according to the VR.
func parseElementValue(vr string, data []byte) interface{} {
	switch vr {
	case VR_OB, VR_OW, VR_OD, VR_OF, VR_OL, VR_OV, VR_UN:
		return append([]byte(nil), data...)
	case VR_US:
		if len(data) >= 2 {
			return binary.LittleEndian.Uint16(data[:2])
		}
	case VR_UL:
		if len(data) >= 4 {
			return binary.LittleEndian.Uint32(data[:4])
		}
	}

	if len(data) == 0 {
		return ""
	}

	// Remove null padding
	value := string(data)
	if idx := strings.IndexByte(value, 0); idx != -1 {
		value = value[:idx]
	}

	return strings.TrimSpace(value)
}

// determineVR looks up the VR of tag in the dictionary for implicit VR data.
func determineVR(tag Tag) string {
	if entry, ok := dictionaryByTag[tag]; ok {
		return entry.VR
	}
	if tag.Element == 0x0000 {
		return VR_UL // group length
	}
	return VR_UN
}

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian)
func (d *Dataset) EncodeDataset() []byte {
	return encodeElements(d, false)
}

// EncodeDatasetWithTransferSyntax encodes a dataset using the provided transfer syntax.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}

	switch transferSyntaxUID {
	case TransferSyntaxImplicitVRLittleEndian:
		return encodeElements(dataset, true), nil
	default:
		return dataset.EncodeDataset(), nil
	}
}

func encodeElements(dataset *Dataset, implicit bool) []byte {
	var result []byte

	for _, tag := range dataset.Tags() {
		element := dataset.Elements[tag]

		// Tag (4 bytes - Little Endian)
		result = binary.LittleEndian.AppendUint16(result, tag.Group)
		result = binary.LittleEndian.AppendUint16(result, tag.Element)

		var valueBytes []byte
		if items, ok := element.Value.([]*Dataset); ok {
			valueBytes = encodeItems(items, implicit)
		} else {
			valueBytes = encodeElementValue(element)
			// DICOM requires even lengths
			if len(valueBytes)%2 == 1 {
				valueBytes = append(valueBytes, padByte(element.VR))
			}
		}

		if implicit {
			result = binary.LittleEndian.AppendUint32(result, uint32(len(valueBytes)))
			result = append(result, valueBytes...)
			continue
		}

		// VR (2 bytes - ASCII)
		result = append(result, []byte(element.VR)...)

		if isLongVR(element.VR) {
			// Long VR format: VR (2 bytes) + Reserved (2 bytes) + Length (4 bytes)
			result = append(result, 0x00, 0x00)
			result = binary.LittleEndian.AppendUint32(result, uint32(len(valueBytes)))
		} else {
			// Short VR format: VR (2 bytes) + Length (2 bytes)
			if len(valueBytes) > 65534 {
				valueBytes = valueBytes[:65534]
			}
			result = binary.LittleEndian.AppendUint16(result, uint16(len(valueBytes)))
		}

		result = append(result, valueBytes...)
	}

	return result
}

func encodeItems(items []*Dataset, implicit bool) []byte {
	var out []byte
	for _, item := range items {
		body := encodeElements(item, implicit)
		out = binary.LittleEndian.AppendUint16(out, itemTag.Group)
		out = binary.LittleEndian.AppendUint16(out, itemTag.Element)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
		out = append(out, body...)
	}
	return out
}

func padByte(vr string) byte {
	switch vr {
	case VR_UI, VR_OB, VR_OW, VR_UN:
		return 0x00
	}
	return 0x20
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element) []byte {
	switch v := element.Value.(type) {
	case string:
		return []byte(strings.TrimRight(v, "\x00"))
	case []string:
		joined := strings.Join(v, "\\")
		return []byte(strings.TrimRight(joined, "\x00"))
	case []byte:
		return v
	case int:
		return []byte(fmt.Sprintf("%d", v))
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, v)
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, v)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
