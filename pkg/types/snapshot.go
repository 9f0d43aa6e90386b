package types

import "encoding/json"

// Snapshot is an immutable, ordered view of every record at one commit.
// The zero value is an empty snapshot at version 0.
type Snapshot struct {
	version uint64
	records []Record
	index   map[string]int
}

// NewSnapshot copies records into a new Snapshot. Order is preserved.
// Callers are responsible for id uniqueness; a later duplicate shadows an
// earlier one in Lookup.
func NewSnapshot(version uint64, records []Record) Snapshot {
	cp := make([]Record, len(records))
	copy(cp, records)
	idx := make(map[string]int, len(cp))
	for i, r := range cp {
		idx[r.ID] = i
	}
	return Snapshot{version: version, records: cp, index: idx}
}

// Version is the store commit that produced this snapshot.
func (s Snapshot) Version() uint64 { return s.version }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// At returns the i-th record in insertion order.
func (s Snapshot) At(i int) Record { return s.records[i] }

// Records returns a copy of the ordered records.
func (s Snapshot) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// IDs returns the record ids in order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.ID
	}
	return out
}

// Lookup returns the record with the given id.
func (s Snapshot) Lookup(id string) (Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// MarshalJSON encodes the snapshot as {"version": n, "records": [...]}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	recs := s.records
	if recs == nil {
		recs = []Record{}
	}
	return json.Marshal(struct {
		Version uint64   `json:"version"`
		Records []Record `json:"records"`
	}{s.version, recs})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version uint64   `json:"version"`
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSnapshot(raw.Version, raw.Records)
	return nil
}
