// Package plan classifies the difference between a source scan and a replica
// scan into the copy and delete actions of one synchronization run. The
// planner never mutates the filesystem beyond reading file content for
// fingerprint comparison.
package plan

import (
	"fmt"
	"sort"

	"github.com/replik-io/replik/pkg/fingerprint"
	"github.com/replik-io/replik/pkg/scan"
)

// FingerprintFunc digests a file's content. It is injected so tests can
// substitute failures and so the planner stays independent of the hash choice.
type FingerprintFunc func(absPath string) (fingerprint.Fingerprint, error)

// Plan is the computed copy-set and delete-set for one run.
// Both slices are sorted by relative path for stable, reproducible logs;
// no caller may attach semantics to the ordering.
type Plan struct {
	// Copies are source entries that are new or content-changed relative to
	// the replica.
	Copies []scan.Entry
	// Deletes are replica entries whose relative path is absent from source.
	Deletes []scan.Entry
}

// Empty reports whether the plan contains no actions.
func (p *Plan) Empty() bool {
	return len(p.Copies) == 0 && len(p.Deletes) == 0
}

// Build computes the plan for the given scans.
//
// A source entry becomes a copy when no replica file exists at its relative
// path, or when the two fingerprints differ. The existence check strictly
// precedes fingerprinting: an absent replica file is a copy candidate without
// any read or hash. Fingerprint equality is the sole change-detection signal;
// a timestamp-only change with identical bytes produces no action.
//
// A replica entry becomes a delete when its relative path is absent from the
// source scan.
func Build(source, replica map[string]scan.Entry, fp FingerprintFunc) (*Plan, error) {
	p := &Plan{}

	for relPath, srcEntry := range source {
		repEntry, exists := replica[relPath]
		if !exists {
			p.Copies = append(p.Copies, srcEntry)
			continue
		}

		srcSum, err := fp(srcEntry.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint source file %s: %w", srcEntry.AbsPath, err)
		}
		repSum, err := fp(repEntry.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to fingerprint replica file %s: %w", repEntry.AbsPath, err)
		}
		if srcSum != repSum {
			p.Copies = append(p.Copies, srcEntry)
		}
	}

	for relPath, repEntry := range replica {
		if _, exists := source[relPath]; !exists {
			p.Deletes = append(p.Deletes, repEntry)
		}
	}

	sort.Slice(p.Copies, func(i, j int) bool { return p.Copies[i].RelPath < p.Copies[j].RelPath })
	sort.Slice(p.Deletes, func(i, j int) bool { return p.Deletes[i].RelPath < p.Deletes[j].RelPath })

	return p, nil
}
