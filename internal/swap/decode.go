package swap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument marks extractor output that does not parse as the
// expected header/legs shape. The whole pass is discarded when this is
// returned; the gap is surfaced to the validator rather than retried.
var ErrMalformedDocument = errors.New("malformed partial document")

// DecodePartial parses wire JSON from an extraction pass into a
// PartialDocument, checking the shape at the boundary: the top level must
// be an object, "header" (if present) must be an object, and "legs" (if
// present) must be an array of objects. Unknown top-level keys are
// ignored; the external extractor is not trusted to be tidy.
func DecodePartial(data []byte, pass string) (*PartialDocument, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: pass %s: not a JSON object: %v", ErrMalformedDocument, pass, err)
	}

	doc := &PartialDocument{
		Header: map[string]any{},
		Pass:   pass,
	}

	if h, ok := raw["header"]; ok {
		if err := json.Unmarshal(h, &doc.Header); err != nil {
			return nil, fmt.Errorf("%w: pass %s: header is not an object: %v", ErrMalformedDocument, pass, err)
		}
	}

	if l, ok := raw["legs"]; ok {
		var legs []json.RawMessage
		if err := json.Unmarshal(l, &legs); err != nil {
			return nil, fmt.Errorf("%w: pass %s: legs is not an array: %v", ErrMalformedDocument, pass, err)
		}
		doc.Legs = make([]map[string]any, len(legs))
		for i, rawLeg := range legs {
			leg := map[string]any{}
			if err := json.Unmarshal(rawLeg, &leg); err != nil {
				return nil, fmt.Errorf("%w: pass %s: legs[%d] is not an object: %v", ErrMalformedDocument, pass, i, err)
			}
			doc.Legs[i] = leg
		}
	}

	if len(doc.Header) == 0 && len(doc.Legs) == 0 {
		return nil, fmt.Errorf("%w: pass %s: neither header nor legs present", ErrMalformedDocument, pass)
	}
	return doc, nil
}
