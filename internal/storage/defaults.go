package storage

import (
	"context"

	"github.com/acebase-go/acebase/internal/path"
)

// SingularOps is the minimal surface a Backend's Transaction must
// implement natively; DefaultMultiple* below provide the batch
// (GetMultiple/SetMultiple/RemoveMultiple) operations spec §4.4 says may
// default to looping over the singular ones.
type SingularOps interface {
	Get(ctx context.Context, p path.Path) (*Record, error)
	Set(ctx context.Context, p path.Path, r *Record) error
	Remove(ctx context.Context, p path.Path) error
}

// DefaultGetMultiple loops Get over each path. Embed in a Transaction
// implementation that has no bulk-read primitive of its own.
func DefaultGetMultiple(ctx context.Context, ops SingularOps, paths []path.Path) (map[string]*Record, error) {
	out := make(map[string]*Record, len(paths))
	for _, p := range paths {
		r, err := ops.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		out[p.String()] = r
	}
	return out, nil
}

// DefaultSetMultiple loops Set over each entry.
func DefaultSetMultiple(ctx context.Context, ops SingularOps, entries map[string]*Record) error {
	for key, r := range entries {
		p, err := path.Parse(key)
		if err != nil {
			return err
		}
		if err := ops.Set(ctx, p, r); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRemoveMultiple loops Remove over each path.
func DefaultRemoveMultiple(ctx context.Context, ops SingularOps, paths []path.Path) error {
	for _, p := range paths {
		if err := ops.Remove(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
