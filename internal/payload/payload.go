// Package payload turns a snapshot into a collector request body.
//
// Two wire formats exist. The signed-checksum format wraps every value as a
// document-database string field and appends a "Checksum" field computed over
// the sorted values and a shared secret. The diff format sends the current
// snapshot next to the previously accepted one.
package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bilal/devstats/pkg/snapshot"
)

// ChecksumField is the field added to signed-checksum payloads.
const ChecksumField = "Checksum"

const separator = "-"

var (
	// ErrInvalidUTF8 is returned for snapshots that JSON cannot carry verbatim.
	ErrInvalidUTF8 = errors.New("snapshot is not valid UTF-8")
	// ErrReservedKey is returned when a signed snapshot already holds ChecksumField.
	ErrReservedKey = errors.New("snapshot uses reserved key")
)

// StringValue is the document-database wrapper for a string field.
type StringValue struct {
	StringValue string `json:"stringValue"`
}

// Document is the signed-checksum request body.
type Document struct {
	Fields map[string]StringValue `json:"fields"`
}

// Measurement is the diff request body. PreviousMeasurement encodes as null
// when there is no prior accepted snapshot.
type Measurement struct {
	CurrentMeasurement  snapshot.Snapshot `json:"currentMeasurement"`
	PreviousMeasurement snapshot.Snapshot `json:"previousMeasurement"`
}

// Checksum returns hex(sha256(v1-v2-...-vn-secret)) where v1..vn are the
// snapshot values ordered by key. Collectors recompute it server-side, so the
// byte layout must not change.
func Checksum(s snapshot.Snapshot, secret string) string {
	joined := strings.Join(s.Values(), separator)
	sum := sha256.Sum256([]byte(joined + separator + secret))
	return hex.EncodeToString(sum[:])
}

// NewDocument builds the signed-checksum document for s. Every key and value
// must survive encoding byte for byte, and s must not contain ChecksumField.
func NewDocument(s snapshot.Snapshot, secret string) (Document, error) {
	if err := validate(s); err != nil {
		return Document{}, err
	}
	if _, ok := s[ChecksumField]; ok {
		return Document{}, fmt.Errorf("%w %q", ErrReservedKey, ChecksumField)
	}
	fields := make(map[string]StringValue, len(s)+1)
	for k, v := range s {
		fields[k] = StringValue{StringValue: v}
	}
	fields[ChecksumField] = StringValue{StringValue: Checksum(s, secret)}
	return Document{Fields: fields}, nil
}

// SignedChecksum encodes the signed-checksum request body.
func SignedChecksum(s snapshot.Snapshot, secret string) ([]byte, error) {
	doc, err := NewDocument(s, secret)
	if err != nil {
		return nil, fmt.Errorf("build signed payload: %w", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal signed payload: %w", err)
	}
	return body, nil
}

// Diff encodes the current/previous measurement request body. previous may be nil.
func Diff(current, previous snapshot.Snapshot) ([]byte, error) {
	if current == nil {
		current = snapshot.Snapshot{}
	}
	if err := validate(current); err != nil {
		return nil, fmt.Errorf("current measurement: %w", err)
	}
	if err := validate(previous); err != nil {
		return nil, fmt.Errorf("previous measurement: %w", err)
	}
	body, err := json.Marshal(Measurement{
		CurrentMeasurement:  current,
		PreviousMeasurement: previous,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal diff payload: %w", err)
	}
	return body, nil
}

// encoding/json replaces invalid UTF-8 with U+FFFD instead of failing.
func validate(s snapshot.Snapshot) error {
	for _, k := range s.Keys() {
		if !utf8.ValidString(k) {
			return fmt.Errorf("%w: key %q", ErrInvalidUTF8, k)
		}
		if !utf8.ValidString(s[k]) {
			return fmt.Errorf("%w: value of %q", ErrInvalidUTF8, k)
		}
	}
	return nil
}
