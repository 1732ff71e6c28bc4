package formstate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// MarshalSnapshot serialises a Snapshot to its slot JSON.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot deserialises slot JSON. A literal null is rejected so a
// cleared slot is never mistaken for an empty snapshot.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s *Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("formstate: decode snapshot: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("formstate: decode snapshot: null payload")
	}
	return s, nil
}

// Hash returns the SHA-256 hex digest of the snapshot's document states,
// ignoring the timestamp. Two captures of an unchanged page hash equal.
func Hash(s *Snapshot) string {
	data, _ := json.Marshal(struct {
		Main  DocumentState  `json:"m"`
		Frame *DocumentState `json:"f"`
	}{s.MainPage, s.IframePage})
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
