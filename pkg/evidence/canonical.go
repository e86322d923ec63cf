package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DigestPrefix names the digest algorithm in rendered hashes.
const DigestPrefix = "sha256:"

// Canonical returns the canonical serialization of v used for fingerprints
// and the evidence hash chain.
//
// Numbers in open-schema values (evidence context) are written exactly as
// held: an int keeps every digit even past 2^53. Serialized evidence must
// therefore be read back with Decode, which keeps numbers as json.Number
// so re-serializing reproduces the same bytes.
func Canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &EvidenceError{Message: "canonical serialization failed", Cause: err}
	}
	return data, nil
}

// Digest returns the SHA-256 digest of data rendered as sha256:<hex>.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// ParseDigest strips the algorithm prefix and decodes the hex digest.
func ParseDigest(s string) ([]byte, bool) {
	hexPart, ok := strings.CutPrefix(s, DigestPrefix)
	if !ok {
		return nil, false
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil || len(raw) != sha256.Size {
		return nil, false
	}
	return raw, true
}

// Decode unmarshals canonical JSON into v, keeping numbers in untyped
// values as json.Number. Trailing data after the value is an error.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
