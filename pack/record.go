package pack

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Record describes an entry without its content.
//
// Offset is the entry's position in the data section of a contiguous
// archive. It is nil for synthesized packs and for records declared by a
// catalog that does not know the layout.
type Record struct {
	MIME     string         `json:"mime" yaml:"mime"`
	Offset   *int64         `json:"offset" yaml:"offset"`
	Length   int64          `json:"length" yaml:"length"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

var (
	metadataEnc cbor.EncMode
	metadataDec cbor.DecMode
)

func init() {
	var err error
	metadataEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pack: CBOR encoder initialization failed: " + err.Error())
	}
	metadataDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("pack: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodeMetadata returns nil for empty metadata so the index stays small.
func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadataEnc.Marshal(metadata)
}

func decodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := metadataDec.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
