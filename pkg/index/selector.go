// Package index decides whether a condition set can be served by Query and,
// if so, through which key schema. The decision is a pure function of the
// immutable table schema and the normalized conditions.
package index

import (
	"fmt"

	"github.com/dynaplan/dynaplan/pkg/condition"
	"github.com/dynaplan/dynaplan/pkg/errors"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

// Decision names the key fields a Query will use. A zero IndexName means the
// table's own primary key; Scan true means no Query path exists.
type Decision struct {
	HashKey   string
	RangeKey  string
	IndexName string
	Scan      bool
}

// Select picks the best available key path for the conditions.
//
// The table's primary key wins whenever its hash key carries an eq
// condition. Otherwise secondary indexes whose hash key carries an eq
// condition compete: an index whose range key is also constrained beats one
// whose is not, an index projecting all attributes is required as soon as
// any filtered attribute falls outside the index's own keys, and remaining
// ties go to the first-declared index. That declaration-order tie-break is a
// documented contract here, not an accident.
//
// A pinned index bypasses the competition but not the eligibility rule: it
// still needs an eq condition on its hash key to Query, and scans the index
// otherwise. Pinning a name the schema doesn't know returns ErrInvalidIndex.
func Select(tableSchema *schema.TableSchema, conds []condition.Condition, pinnedIndex string) (Decision, error) {
	if pinnedIndex != "" {
		idx, ok := tableSchema.Index(pinnedIndex)
		if !ok {
			return Decision{}, fmt.Errorf("%w: %q on table %s",
				errors.ErrInvalidIndex, pinnedIndex, tableSchema.TableName)
		}
		if _, ok := condition.FindEq(conds, idx.HashKey); !ok {
			return Decision{Scan: true, IndexName: pinnedIndex}, nil
		}
		return decideForIndex(idx, conds), nil
	}

	// Primary key first: an eq condition on the table hash key always
	// produces a Query against the base table.
	if _, ok := condition.FindEq(conds, tableSchema.HashKey); ok {
		d := Decision{HashKey: tableSchema.HashKey}
		if tableSchema.RangeKey != "" {
			if rc, ok := condition.Find(conds, tableSchema.RangeKey); ok && rc.Operator.KeyCapable() {
				d.RangeKey = tableSchema.RangeKey
			}
		}
		return d, nil
	}

	best, found := bestSecondary(tableSchema, conds)
	if !found {
		return Decision{Scan: true}, nil
	}
	return best, nil
}

func bestSecondary(tableSchema *schema.TableSchema, conds []condition.Condition) (Decision, bool) {
	var best Decision
	bestScore := 0

	for _, idx := range tableSchema.Indexes {
		if _, ok := condition.FindEq(conds, idx.HashKey); !ok {
			continue
		}
		d := decideForIndex(idx, conds)

		// Filtered attributes outside the index's own keys need the index to
		// project everything, or the filter would see incomplete items.
		if filtersBeyondKeys(idx, conds) && !idx.ProjectsAll() {
			continue
		}

		score := 1
		if d.RangeKey != "" {
			score += 2
		}
		if idx.ProjectsAll() {
			score++
		}
		// Strictly-greater keeps the first-declared index on ties.
		if score > bestScore {
			bestScore = score
			best = d
		}
	}
	return best, bestScore > 0
}

func decideForIndex(idx schema.SecondaryIndex, conds []condition.Condition) Decision {
	d := Decision{HashKey: idx.HashKey, IndexName: idx.Name}
	if idx.RangeKey != "" {
		if rc, ok := condition.Find(conds, idx.RangeKey); ok && rc.Operator.KeyCapable() {
			d.RangeKey = idx.RangeKey
		}
	}
	return d
}

func filtersBeyondKeys(idx schema.SecondaryIndex, conds []condition.Condition) bool {
	for _, c := range conds {
		if c.Attribute == idx.HashKey || c.Attribute == idx.RangeKey {
			continue
		}
		if !idx.Covers(c.Attribute) {
			return true
		}
	}
	return false
}
