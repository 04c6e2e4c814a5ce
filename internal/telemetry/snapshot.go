// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"
)

// Snapshot is the serialisable state of a reporter.
type Snapshot struct {
	Entries []Entry      `json:"entries"`
	Summary []SummaryRow `json:"summary"`
}

// Snapshot captures entries (most recent first) and the span summary.
func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{Entries: r.Entries(), Summary: r.Summary()}
}

// WriteSnapshot atomically replaces path with the JSON snapshot.
func (r *Reporter) WriteSnapshot(path string) (err error) {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal telemetry snapshot: %w", err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600), renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if cerr := pf.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write telemetry snapshot: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace telemetry snapshot: %w", err)
	}
	return nil
}
