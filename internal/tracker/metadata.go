package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"checkinbot/internal/blockchain"
)

var errMalformedMetadata = errors.New("metadata is not a JSON object")

// Metadata is a post's json_metadata with typed, presence-checked accessors.
// A missing key is a normal result, never an error.
type Metadata map[string]json.RawMessage

// ParseMetadata accepts the metadata object itself or the object encoded as
// a JSON string. Empty metadata parses to an empty map.
func ParseMetadata(raw json.RawMessage) (Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Metadata{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, errMalformedMetadata
		}
		if strings.TrimSpace(encoded) == "" {
			return Metadata{}, nil
		}
		raw = json.RawMessage(encoded)
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, errMalformedMetadata
	}
	return m, nil
}

// String returns the value of key when it is a JSON string.
func (m Metadata) String(key string) (string, bool) {
	raw, ok := m[key]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Strings returns key as a list: a JSON array yields its string elements, a
// single string yields itself.
func (m Metadata) Strings(key string) []string {
	raw, ok := m[key]
	if !ok {
		return nil
	}

	if s, ok := m.String(key); ok {
		return []string{s}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// Beneficiaries returns the well-formed entries of the beneficiaries key.
func (m Metadata) Beneficiaries() []blockchain.Beneficiary {
	raw, ok := m["beneficiaries"]
	if !ok {
		return nil
	}
	return decodeBeneficiaries(raw)
}

func decodeBeneficiaries(raw json.RawMessage) []blockchain.Beneficiary {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]blockchain.Beneficiary, 0, len(items))
	for _, item := range items {
		var b blockchain.Beneficiary
		if json.Unmarshal(item, &b) == nil && b.Account != "" {
			out = append(out, b)
		}
	}
	return out
}

// extensionBeneficiaries reads [0, {"beneficiaries": [...]}] comment options
// extensions.
func extensionBeneficiaries(raw json.RawMessage) []blockchain.Beneficiary {
	if len(raw) == 0 {
		return nil
	}

	var extensions []json.RawMessage
	if err := json.Unmarshal(raw, &extensions); err != nil {
		return nil
	}

	var out []blockchain.Beneficiary
	for _, ext := range extensions {
		var pair []json.RawMessage
		if err := json.Unmarshal(ext, &pair); err != nil || len(pair) < 2 {
			continue
		}

		var tag int
		if err := json.Unmarshal(pair[0], &tag); err != nil || tag != 0 {
			continue
		}

		var body struct {
			Beneficiaries json.RawMessage `json:"beneficiaries"`
		}
		if err := json.Unmarshal(pair[1], &body); err != nil {
			continue
		}
		out = append(out, decodeBeneficiaries(body.Beneficiaries)...)
	}
	return out
}
