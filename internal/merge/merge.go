// Package merge folds partial extraction documents into one accumulator
// document. The fold is pure over its inputs, idempotent under re-applied
// passes, and commutative as long as each leaf key has a single
// authoritative pass, which is what makes parallel secondary passes safe.
package merge

import (
	"fmt"

	"github.com/jmfuenzalida/contractreaderflow/internal/correlate"
	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// Merger applies partial documents to an accumulator. identityFields are
// the header leaf keys whose core-pass values are immutable once merged.
type Merger struct {
	correlator     *correlate.Correlator
	identityFields map[string]bool
}

// DefaultIdentityFields lists the header fields for which the core pass
// always wins: the trade's identity must come from the authoritative
// source, never from a later field pass.
func DefaultIdentityFields() []string {
	return []string{"tradeId", "tradeDate", "party1", "party2", "counterparty"}
}

// New returns a Merger using the given correlator and the header identity
// fields protected by core-pass precedence.
func New(c *correlate.Correlator, identityFields []string) *Merger {
	fields := make(map[string]bool, len(identityFields))
	for _, f := range identityFields {
		fields[f] = true
	}
	return &Merger{correlator: c, identityFields: fields}
}

// Apply folds one partial document into the accumulator. Header fields
// merge recursively; leg objects are first correlated to a canonical slot
// and then merged into that slot. Legs that cannot be correlated are
// dropped and recorded as gaps, never halting the pipeline.
func (m *Merger) Apply(acc *swap.AccumulatorDocument, partial *swap.PartialDocument, identities []swap.LegIdentity) error {
	if partial == nil {
		return fmt.Errorf("merge: nil partial document")
	}
	if len(acc.Legs) != len(identities) {
		return fmt.Errorf("merge: accumulator has %d legs, canonical slot count is %d", len(acc.Legs), len(identities))
	}

	if partial.Core {
		acc.MarkCorePass(partial.Pass)
	}

	m.mergeMap(acc, acc.Header, partial.Header, "header", partial)

	m.mergeLegs(acc, partial, identities)

	for _, path := range partial.LowConfidence {
		acc.MarkLowConfidence(path, fmt.Sprintf("pass %s reported low confidence", partial.Pass))
	}
	return nil
}

// mergeLegs aligns the partial's legs to canonical slots. The core pass
// defines the order, so its legs map positionally. Any other pass is
// correlated leg by leg; if no leg in the document carries identifying
// keys and the counts line up, positional alignment is used as a last
// resort and the contribution is flagged low confidence.
func (m *Merger) mergeLegs(acc *swap.AccumulatorDocument, partial *swap.PartialDocument, identities []swap.LegIdentity) {
	if len(partial.Legs) == 0 {
		return
	}

	if partial.Core {
		for i, leg := range partial.Legs {
			if i >= len(acc.Legs) {
				break
			}
			m.mergeMap(acc, acc.Legs[i], leg, legPath(i), partial)
		}
		return
	}

	if m.positionalFallback(partial, identities) {
		for i, leg := range partial.Legs {
			m.mergeMap(acc, acc.Legs[i], leg, legPath(i), partial)
			acc.MarkLowConfidence(legPath(i), fmt.Sprintf("pass %s aligned positionally without identifying keys", partial.Pass))
		}
		return
	}

	claimed := map[int]bool{}
	for i, leg := range partial.Legs {
		slot, err := m.correlator.Correlate(leg, identities)
		if err != nil {
			kind := swap.GapLegUnmatched
			if err == correlate.ErrAmbiguous {
				kind = swap.GapLegAmbiguous
			}
			acc.RecordGap(swap.Gap{
				Pass:   partial.Pass,
				Kind:   kind,
				Detail: fmt.Sprintf("legs[%d]: %v", i, err),
			})
			continue
		}
		if claimed[slot] {
			acc.RecordGap(swap.Gap{
				Pass:   partial.Pass,
				Kind:   swap.GapDuplicateSlot,
				Detail: fmt.Sprintf("legs[%d]: slot %d already claimed within this pass", i, slot),
			})
			continue
		}
		claimed[slot] = true
		m.mergeMap(acc, acc.Legs[slot], leg, legPath(slot), partial)
	}
}

// positionalFallback reports whether the partial qualifies for index
// alignment: same leg count as the canonical slots and not a single leg
// carrying identifying keys.
func (m *Merger) positionalFallback(partial *swap.PartialDocument, identities []swap.LegIdentity) bool {
	if len(partial.Legs) != len(identities) {
		return false
	}
	for _, leg := range partial.Legs {
		if correlate.HasIdentifyingKeys(leg) {
			return false
		}
	}
	return true
}

// mergeMap recursively merges src into dst, tracking provenance per leaf.
// Sequence-valued leaves replace wholesale: only one pass is ever the
// authoritative source of a given leaf, so there is nothing to union.
func (m *Merger) mergeMap(acc *swap.AccumulatorDocument, dst, src map[string]any, path string, partial *swap.PartialDocument) {
	for key, value := range src {
		leafPath := path + "." + key

		if srcChild, ok := value.(map[string]any); ok {
			if dstChild, ok := dst[key].(map[string]any); ok {
				m.mergeMap(acc, dstChild, srcChild, leafPath, partial)
				continue
			}
			if _, exists := dst[key]; !exists {
				child := map[string]any{}
				dst[key] = child
				m.mergeMap(acc, child, srcChild, leafPath, partial)
				continue
			}
			// A leaf is being replaced by a mapping. Treat the whole
			// mapping as the incoming value and fall through to the
			// leaf rules below.
		}

		existing, exists := dst[key]
		if !exists {
			dst[key] = value
			acc.SetProvenance(leafPath, partial.Pass)
			continue
		}

		if swap.NormalizedEqual(existing, value) {
			continue
		}

		keptBy, _ := acc.Provenance(leafPath)
		if m.coreProtected(acc, leafPath, keptBy) && !partial.Core {
			acc.Conflicts = append(acc.Conflicts, swap.FieldConflict{
				Path:     leafPath,
				Kept:     existing,
				Rejected: value,
				KeptPass: keptBy,
				LostPass: partial.Pass,
			})
			acc.MarkLowConfidence(leafPath, fmt.Sprintf("pass %s disagreed with core value", partial.Pass))
			continue
		}

		acc.Conflicts = append(acc.Conflicts, swap.FieldConflict{
			Path:     leafPath,
			Kept:     value,
			Rejected: existing,
			KeptPass: partial.Pass,
			LostPass: keptBy,
		})
		acc.MarkLowConfidence(leafPath, fmt.Sprintf("passes %s and %s disagreed", keptBy, partial.Pass))
		dst[key] = value
		acc.SetProvenance(leafPath, partial.Pass)
	}
}

// coreProtected reports whether the existing value at leafPath was set by
// the core pass on a protected header identity field.
func (m *Merger) coreProtected(acc *swap.AccumulatorDocument, leafPath, keptBy string) bool {
	if keptBy == "" || keptBy != acc.CorePass() {
		return false
	}
	const headerPrefix = "header."
	if len(leafPath) <= len(headerPrefix) || leafPath[:len(headerPrefix)] != headerPrefix {
		return false
	}
	return m.identityFields[leafPath[len(headerPrefix):]]
}

func legPath(slot int) string {
	return fmt.Sprintf("legs[%d]", slot)
}
