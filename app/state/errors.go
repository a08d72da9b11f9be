package state

import (
	"errors"
	"fmt"
)

// CorruptError reports persisted state that could not be understood. Key is
// empty when the whole record is unusable and set for a single bad entry.
type CorruptError struct {
	Location string
	Key      string
	Err      error
}

func (e *CorruptError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("corrupt state %s: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("corrupt state %s entry %q: %v", e.Location, e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// parseEntries converts raw string timestamps, skipping entries that do not
// parse. The returned error joins one CorruptError per skipped entry.
func parseEntries(location string, raw map[string]string) (Watermarks, error) {
	marks := make(Watermarks, len(raw))
	var errs []error
	for key, value := range raw {
		t, err := parseTimestamp(value)
		if err != nil {
			errs = append(errs, &CorruptError{Location: location, Key: key, Err: err})
			continue
		}
		marks[key] = t
	}
	return marks, errors.Join(errs...)
}
