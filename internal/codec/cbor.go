// Package codec holds the canonical encodings used for fingerprints and cached
// artifacts.
//
// Values are encoded as CBOR with Core Deterministic Encoding (RFC 8949
// §4.2): map keys are sorted and integers use their smallest form, so the same
// logical value always produces identical bytes regardless of Go map iteration
// order. Artifact payloads are wrapped in a small frame that records the
// compression algorithm, see Pack and Unpack.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Options and artifact maps are always string keyed; decode any-typed
		// targets into map[string]any rather than map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
