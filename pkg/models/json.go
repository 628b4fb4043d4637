package models

import (
	"bytes"
	"encoding/json"
)

// DecodeJSON unmarshals data into v. Numbers inside untyped values such as
// Attempt.Metadata decode as json.Number, so large integers keep their digits.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
