// Package merge combines freshly fetched records with the persisted dataset.
package merge

import "wastewater/internal/core"

// Result is the outcome of a merge.
type Result struct {
	Dataset core.Dataset
	// Added holds the incoming records that were new, in incoming order.
	Added []core.Record
	// Skipped counts incoming records dropped as duplicates.
	Skipped int
}

// HasNewData reports whether the merge changed the dataset.
func (r Result) HasNewData() bool {
	return len(r.Added) > 0
}

// Merge appends the incoming records whose (sampleNumber, extractionDate)
// key is not yet present, then sorts ascending by extraction date. Records
// sharing a day keep their relative order. When nothing is new, the
// existing dataset is returned as is.
func Merge(existing core.Dataset, incoming []core.Record) Result {
	seen := make(map[core.Key]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Key()] = struct{}{}
	}

	var added []core.Record
	skipped := 0
	for _, r := range incoming {
		k := r.Key()
		if _, dup := seen[k]; dup {
			skipped++
			continue
		}
		seen[k] = struct{}{}
		added = append(added, r)
	}

	if len(added) == 0 {
		return Result{Dataset: existing, Skipped: skipped}
	}

	merged := make(core.Dataset, 0, len(existing)+len(added))
	merged = append(merged, existing...)
	merged = append(merged, added...)
	merged.SortByDate()

	return Result{Dataset: merged, Added: added, Skipped: skipped}
}
