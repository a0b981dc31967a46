// Package backup writes and reads full-state JSON exports.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// ErrMalformedImport is returned when an import payload cannot be parsed.
// The current state is left untouched.
var ErrMalformedImport = errors.New("malformed import")

// FileName is the suggested name of an export taken at now.
func FileName(now time.Time) string {
	return "jar_backup_" + now.Format("2006-01-02") + ".json"
}

// Export writes state as indented JSON in the document layout.
func Export(w io.Writer, state domain.ApplicationState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// Import reads an export and decodes it onto defaults. lastUpdated is reset
// to now; the import is a fresh local edit.
func Import(r io.Reader, now time.Time) (domain.ApplicationState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ApplicationState{}, fmt.Errorf("read import: %w", err)
	}
	s, err := domain.Decode(data, now)
	if err != nil {
		return domain.ApplicationState{}, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	s.LastUpdated = now.UnixMilli()
	return s, nil
}
