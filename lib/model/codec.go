package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses the JSON representation of a document. Unknown fields are
// rejected so typos in patches surface as validation errors.
func Decode(coll Collection, raw []byte) (Document, error) {
	doc, err := New(coll)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", coll, err)
	}
	return doc, nil
}

// Encode returns the JSON representation of a document
func Encode(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Clone returns a deep copy of doc
func Clone(doc Document) (Document, error) {
	raw, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return Decode(doc.Collection(), raw)
}

// Merge applies a JSON merge patch (RFC 7386) to doc and returns the result as
// a new document. A nil value removes the field. The "_id" field of the patch
// must match the id of doc.
func Merge(doc Document, patch map[string]interface{}) (Document, error) {
	if id, ok := patch["_id"]; ok && id != doc.GetID() {
		return nil, fmt.Errorf("patch id %v does not match %s", id, doc.GetID())
	}

	raw, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	var target map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	// keep big numbers (storage stats) exact
	dec.UseNumber()
	if err := dec.Decode(&target); err != nil {
		return nil, err
	}

	merged := mergeValue(target, patch)

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return Decode(doc.Collection(), out)
}

func mergeValue(target interface{}, patch interface{}) interface{} {
	p, ok := patch.(map[string]interface{})
	if !ok {
		return patch
	}
	t, ok := target.(map[string]interface{})
	if !ok {
		t = map[string]interface{}{}
	}
	for k, v := range p {
		if v == nil {
			delete(t, k)
			continue
		}
		t[k] = mergeValue(t[k], v)
	}
	return t
}
