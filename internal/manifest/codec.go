package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/messages"
)

// State classifies what a read of the manifest file found.
type State int

// Manifest states.
const (
	StateMissing State = iota
	StateEmpty
	StatePresent
	StateCorrupt
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateEmpty:
		return "empty"
	case StatePresent:
		return "present"
	case StateCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Decode parses a manifest document. Blank input and a JSON null decode to no records.
// A document that does not parse, or holds an invalid record, wraps errs.ErrCorruptManifest.
func Decode(data []byte) ([]Record, State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Record{}, StateEmpty, nil
	}
	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, StateCorrupt, errs.Wrap(errs.ErrCorruptManifest, messages.ManifestDecodeContext, err)
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, StateCorrupt, errs.New(errs.ErrCorruptManifest, fmt.Sprintf(messages.ManifestInvalidRecordFmt, i, err))
		}
		records[i] = normalize(rec)
	}
	if len(records) == 0 {
		return []Record{}, StateEmpty, nil
	}
	return records, StatePresent, nil
}

// Encode renders records as an indented JSON array with a trailing newline.
// A nil slice encodes as an empty array and nil file lists as empty lists.
func Encode(records []Record) ([]byte, error) {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, normalize(rec))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf(messages.ManifestEncodeFmt, err)
	}
	return append(data, '\n'), nil
}

func normalize(rec Record) Record {
	if rec.Files == nil {
		rec.Files = []string{}
	}
	if len(rec.Dirs) == 0 {
		rec.Dirs = nil
	}
	return rec
}
