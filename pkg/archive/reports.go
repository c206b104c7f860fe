package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/tripnara/readiness/pkg/readiness"
)

// Reports stores readiness reports as canonical JSON so equal reports share a reference.
type Reports struct {
	store Store
}

// NewReports wraps store. A nil store yields an archive that rejects every call with ErrDisabled.
func NewReports(store Store) *Reports {
	return &Reports{store: store}
}

// Enabled reports whether a backend is configured.
func (r *Reports) Enabled() bool {
	return r != nil && r.store != nil
}

// Put archives report and returns its reference.
func (r *Reports) Put(ctx context.Context, report readiness.Report) (string, error) {
	if !r.Enabled() {
		return "", ErrDisabled
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	return r.store.Put(ctx, canonical)
}

// Get loads the report stored under ref.
func (r *Reports) Get(ctx context.Context, ref string) (readiness.Report, error) {
	if !r.Enabled() {
		return readiness.Report{}, ErrDisabled
	}
	data, err := r.store.Get(ctx, ref)
	if err != nil {
		return readiness.Report{}, err
	}
	var report readiness.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return readiness.Report{}, fmt.Errorf("decode report %s: %w", ref, err)
	}
	return report, nil
}
