// Package swap defines the structured document model for an extracted
// Interest Rate Swap: the header/legs document shape shared by every
// extraction pass, the canonical leg identities established by the core
// pass, and the validation report produced once all passes are merged.
package swap

import "fmt"

// RateType classifies a swap leg as fixed or floating.
type RateType string

const (
	RateTypeFixed    RateType = "FIXED"
	RateTypeFloating RateType = "FLOATING"
)

// LegIdentity is the canonical record of one leg's identity. It is built
// once from the core extraction pass and is immutable afterwards; every
// later pass is aligned against it.
type LegIdentity struct {
	SlotIndex          int      `json:"slotIndex"`
	LegLabel           string   `json:"legLabel"`
	NotionalCurrency   string   `json:"notionalCurrency"`
	SettlementCurrency string   `json:"settlementCurrency"`
	RateType           RateType `json:"rateType"`
	PayerRef           string   `json:"payerPartyReference"`
	ReceiverRef        string   `json:"receiverPartyReference"`
}

// PartialDocument is the output of a single extraction pass: a subset of
// the header fields plus zero or more leg objects. The order of Legs is
// not trusted except for the core pass, which defines canonical order.
type PartialDocument struct {
	Header map[string]any   `json:"header"`
	Legs   []map[string]any `json:"legs"`

	// Pass names the extraction pass that produced this document.
	Pass string `json:"-"`

	// Core marks the pass that establishes leg identities and whose
	// header identity fields take precedence in merges.
	Core bool `json:"-"`

	// LowConfidence lists dot paths the extractor itself flagged as
	// uncertain (e.g. fields answered without supporting evidence).
	LowConfidence []string `json:"-"`
}

// Gap records a contribution that never made it into the accumulator:
// a failed pass, a discarded malformed document, or a leg dropped
// because it could not be correlated to a canonical slot.
type Gap struct {
	Pass     string
	Kind     GapKind
	Detail   string
	Critical bool
}

// GapKind classifies why a contribution was dropped.
type GapKind string

const (
	GapPassFailed    GapKind = "PASS_FAILED"
	GapMalformed     GapKind = "MALFORMED_DOCUMENT"
	GapLegAmbiguous  GapKind = "LEG_AMBIGUOUS"
	GapLegUnmatched  GapKind = "LEG_UNMATCHED"
	GapDuplicateSlot GapKind = "DUPLICATE_SLOT"
)

// FieldConflict records two passes writing different values to the same
// leaf. The schema design makes exactly one pass authoritative per leaf,
// so a conflict is always worth surfacing to a reviewer.
type FieldConflict struct {
	Path     string
	Kept     any
	Rejected any
	KeptPass string
	LostPass string
}

// AccumulatorDocument is the running merge result for one contract. It is
// owned by a single pipeline run and never shared across contracts. Only
// Header and Legs travel on the wire; the bookkeeping fields exist so the
// merge can honor core-pass precedence and the validator can see what the
// merge dropped or doubted.
type AccumulatorDocument struct {
	Header map[string]any   `json:"header"`
	Legs   []map[string]any `json:"legs"`

	// provenance maps a leaf path to the pass that last set it.
	provenance map[string]string

	// corePass names the pass whose header identity fields are immutable.
	corePass string

	// LowConfidence maps a dot path to the reason it is doubted.
	LowConfidence map[string]string `json:"-"`

	Gaps      []Gap           `json:"-"`
	Conflicts []FieldConflict `json:"-"`
}

// NewAccumulator returns an empty accumulator sized to the canonical slot
// count. Legs always has one entry per slot even before any pass fills it.
func NewAccumulator(identities []LegIdentity) *AccumulatorDocument {
	legs := make([]map[string]any, len(identities))
	for i := range legs {
		legs[i] = map[string]any{}
	}
	return &AccumulatorDocument{
		Header:        map[string]any{},
		Legs:          legs,
		provenance:    map[string]string{},
		LowConfidence: map[string]string{},
	}
}

// Provenance returns the pass that last set the given leaf path, if any.
func (d *AccumulatorDocument) Provenance(path string) (string, bool) {
	pass, ok := d.provenance[path]
	return pass, ok
}

// SetProvenance records the pass owning a leaf path.
func (d *AccumulatorDocument) SetProvenance(path, pass string) {
	d.provenance[path] = pass
}

// CorePass returns the name of the core pass, empty until one is merged.
func (d *AccumulatorDocument) CorePass() string { return d.corePass }

// MarkCorePass records which pass is the core pass.
func (d *AccumulatorDocument) MarkCorePass(pass string) { d.corePass = pass }

// RecordGap appends a gap unless an identical one is already on the
// ledger. A re-applied pass reports the same drops again; keeping one
// entry per distinct drop is what keeps the merge idempotent under
// retries.
func (d *AccumulatorDocument) RecordGap(g Gap) {
	for _, have := range d.Gaps {
		if have == g {
			return
		}
	}
	d.Gaps = append(d.Gaps, g)
}

// MarkLowConfidence flags a path as doubted, keeping the first reason.
func (d *AccumulatorDocument) MarkLowConfidence(path, reason string) {
	if _, ok := d.LowConfidence[path]; !ok {
		d.LowConfidence[path] = reason
	}
}

// FindingCategory groups validation findings by the kind of check that
// produced them.
type FindingCategory string

const (
	CategoryStructural   FindingCategory = "STRUCTURAL"
	CategoryCompleteness FindingCategory = "COMPLETENESS"
	CategoryClarity      FindingCategory = "CLARITY"
	CategoryDataQuality  FindingCategory = "DATA_QUALITY"
	CategoryConsistency  FindingCategory = "CONSISTENCY"
)

// Severity ranks a finding's weight for the quality tier computation.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is one validation observation tied to a field path.
type Finding struct {
	Category FindingCategory `json:"category"`
	Severity Severity        `json:"severity"`
	Field    string          `json:"field"`
	Message  string          `json:"message"`
}

// QualityTier is the categorical trust summary of a merged document.
type QualityTier string

const (
	TierExcellent QualityTier = "EXCELLENT"
	TierGood      QualityTier = "GOOD"
	TierFair      QualityTier = "FAIR"
	TierPoor      QualityTier = "POOR"
)

// ValidationReport is the validator's output. It is derived, recomputed
// fresh on every run, and never persisted as mutable state.
type ValidationReport struct {
	Findings          []Finding   `json:"findings"`
	CompletenessRatio float64     `json:"completenessRatio"`
	QualityTier       QualityTier `json:"qualityTier"`
}

// CountBySeverity returns how many findings carry the given severity.
func (r *ValidationReport) CountBySeverity(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// HasCritical reports whether any finding is CRITICAL.
func (r *ValidationReport) HasCritical() bool {
	return r.CountBySeverity(SeverityCritical) > 0
}

// BuildLegIdentities derives the canonical leg identities from the core
// pass document. The core pass defines slot order; every leg present in
// it becomes one canonical slot.
func BuildLegIdentities(core *PartialDocument) ([]LegIdentity, error) {
	if core == nil || len(core.Legs) == 0 {
		return nil, fmt.Errorf("core document has no legs to identify")
	}
	identities := make([]LegIdentity, len(core.Legs))
	for i, leg := range core.Legs {
		identities[i] = LegIdentity{
			SlotIndex:          i,
			LegLabel:           stringField(leg, "legId"),
			NotionalCurrency:   stringField(leg, "notionalCurrency"),
			SettlementCurrency: stringField(leg, "settlementCurrency"),
			RateType:           RateType(stringField(leg, "rateType")),
			PayerRef:           stringField(leg, "payerPartyReference"),
			ReceiverRef:        stringField(leg, "receiverPartyReference"),
		}
	}
	return identities, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
