package jsonpatch

import (
	"encoding/json"
	"fmt"

	evjsonpatch "github.com/evanphx/json-patch"
	"github.com/pkg/errors"

	"github.com/totomo/luvtree/common"
)

// Encode marshals a patch list to JSON.
func Encode(patches []Patch) ([]byte, error) {
	if patches == nil {
		patches = []Patch{}
	}
	return json.Marshal(patches)
}

// Decode unmarshals and validates a JSON patch list.
func Decode(data []byte) ([]Patch, error) {
	var patches []Patch
	if err := json.Unmarshal(data, &patches); err != nil {
		return nil, common.ErrInvalidPatch{Message: err.Error()}
	}
	for i, p := range patches {
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "patch %d", i)
		}
	}
	return patches, nil
}

// ApplyToDocument replays absolute patches onto a plain JSON document and returns
// the resulting document. The input document is not modified.
func ApplyToDocument(doc []byte, patches []Patch) ([]byte, error) {
	if len(patches) == 0 {
		return doc, nil
	}
	data, err := Encode(patches)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode patches")
	}
	decoded, err := evjsonpatch.DecodePatch(data)
	if err != nil {
		return nil, common.ErrInvalidPatch{Message: err.Error()}
	}
	out, err := decoded.Apply(doc)
	if err != nil {
		return nil, common.ErrInvalidPatch{Message: fmt.Sprintf("failed to apply patches: %v", err)}
	}
	return out, nil
}

// ApplyToValue is ApplyToDocument for decoded snapshot values.
func ApplyToValue(snapshot interface{}, patches []Patch) (interface{}, error) {
	doc, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	out, err := ApplyToDocument(doc, patches)
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode patched snapshot")
	}
	return result, nil
}
