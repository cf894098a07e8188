package dicom

import "fmt"

// Codec turns a dataset into an opaque blob and back. DecodeInto overlays the
// decoded elements onto into, so several blobs can be stacked in order.
type Codec interface {
	Encode(ds *Dataset) ([]byte, error)
	DecodeInto(data []byte, into *Dataset) error
}

// ExplicitVRCodec stores blobs as Explicit VR Little Endian element streams.
type ExplicitVRCodec struct{}

// Encode implements Codec.
func (ExplicitVRCodec) Encode(ds *Dataset) ([]byte, error) {
	if ds == nil {
		return nil, nil
	}
	return ds.EncodeDataset(), nil
}

// DecodeInto implements Codec.
func (ExplicitVRCodec) DecodeInto(data []byte, into *Dataset) error {
	if len(data) == 0 {
		return nil
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return fmt.Errorf("decode blob: %w", err)
	}
	into.Merge(ds)
	return nil
}
