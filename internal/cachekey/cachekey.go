// Package cachekey derives the deterministic content hash that identifies a
// semantically unique render request. Two requests that differ only in the
// ordering of their version list or answer keys produce the same key.
package cachekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"docforge/internal/pkg/errors"
)

// Input is the cacheable subset of a render request. StyleID may be empty;
// every other field is required.
type Input struct {
	ContractInstanceID string
	VersionIDs         []string
	Answers            map[string]any
	StyleID            string
	Format             string
}

// record is the fixed-shape document that actually gets hashed. Struct field
// order fixes the serialization order.
type record struct {
	ContractInstanceID string   `json:"contractInstanceId"`
	VersionIDs         []string `json:"versionIds"`
	Answers            any      `json:"answers"`
	StyleID            any      `json:"styleId"`
	Format             string   `json:"format"`
}

// Compute returns the hex-encoded SHA-256 key for the given input.
// It is a pure function: no I/O, no process state.
func Compute(in Input) (string, error) {
	if strings.TrimSpace(in.ContractInstanceID) == "" {
		return "", errors.ValidationField("contractInstanceId", "required")
	}
	if strings.TrimSpace(in.Format) == "" {
		return "", errors.ValidationField("format", "required")
	}

	versionIDs := make([]string, len(in.VersionIDs))
	copy(versionIDs, in.VersionIDs)
	sort.Strings(versionIDs)

	answers, err := canonicalize(in.Answers)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeValidation, "cachekey.compute", "answers are not canonicalizable")
	}
	if answers == nil {
		// Empty and nil answer maps hash identically.
		answers = map[string]any{}
	}

	var styleID any
	if in.StyleID != "" {
		styleID = in.StyleID
	}

	payload, err := json.Marshal(record{
		ContractInstanceID: in.ContractInstanceID,
		VersionIDs:         versionIDs,
		Answers:            answers,
		StyleID:            styleID,
		Format:             in.Format,
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeValidation, "cachekey.compute", "failed to serialize render inputs")
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize rewrites a decoded-JSON-style value into its canonical form:
// map values are canonicalized recursively (encoding/json emits map keys in
// sorted order), and array elements are canonicalized and then sorted by
// their own canonical serialization.
func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil

	case map[string]any:
		if t == nil {
			return nil, nil
		}
		out := make(map[string]any, len(t))
		for k, vv := range t {
			cv, err := canonicalize(vv)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil

	case []any:
		elems := make([]any, len(t))
		encoded := make([][]byte, len(t))
		for i, vv := range t {
			cv, err := canonicalize(vv)
			if err != nil {
				return nil, err
			}
			b, err := json.Marshal(cv)
			if err != nil {
				return nil, err
			}
			elems[i] = cv
			encoded[i] = b
		}
		sort.Sort(&byEncoding{elems: elems, encoded: encoded})
		return elems, nil

	default:
		// Scalars pass through; anything the serializer cannot represent
		// fails loudly here rather than producing an unstable key.
		if _, err := json.Marshal(t); err != nil {
			return nil, err
		}
		return t, nil
	}
}

type byEncoding struct {
	elems   []any
	encoded [][]byte
}

func (s *byEncoding) Len() int           { return len(s.elems) }
func (s *byEncoding) Less(i, j int) bool { return bytes.Compare(s.encoded[i], s.encoded[j]) < 0 }
func (s *byEncoding) Swap(i, j int) {
	s.elems[i], s.elems[j] = s.elems[j], s.elems[i]
	s.encoded[i], s.encoded[j] = s.encoded[j], s.encoded[i]
}
