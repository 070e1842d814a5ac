// Package validate runs the fixed battery of checks over a fully merged
// swap document and scores the result. Validation never corrects the
// document; the report is the sole signal of trustworthiness and the
// downstream reviewer decides what to do with it.
package validate

import (
	"fmt"
	"sort"

	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// Config tunes the validator without changing any check's semantics.
type Config struct {
	// HeaderCriticalFields must be present in the merged header.
	HeaderCriticalFields []string `yaml:"headerCriticalFields"`
	// HeaderIdentityFields missing from the header are CRITICAL rather
	// than WARNING.
	HeaderIdentityFields []string `yaml:"headerIdentityFields"`
	// LegCriticalFields must be present on every leg, plus the
	// rate-type-conditional field (fixedRate or floatingRateIndex).
	LegCriticalFields []string `yaml:"legCriticalFields"`
	// DateFields are checked against the accepted date formats.
	HeaderDateFields []string `yaml:"headerDateFields"`
	LegDateFields    []string `yaml:"legDateFields"`
	// ClarityEscalation is the low-confidence marker count above which
	// clarity findings escalate from INFO to WARNING.
	ClarityEscalation int `yaml:"clarityEscalation"`
}

// DefaultConfig returns the production check configuration. The critical
// field sets follow the standardized trade schema the mapping engine and
// the extraction prompts both target.
func DefaultConfig() Config {
	return Config{
		HeaderCriticalFields: []string{"tradeId", "tradeDate", "effectiveDate", "maturityDate", "counterparty"},
		HeaderIdentityFields: []string{"tradeId", "tradeDate", "effectiveDate", "maturityDate"},
		LegCriticalFields: []string{
			"legId", "rateType", "notionalAmount", "notionalCurrency",
			"settlementCurrency", "settlementType", "paymentFrequency", "dayCountFraction",
		},
		HeaderDateFields:  []string{"tradeDate", "effectiveDate", "maturityDate"},
		LegDateFields:     []string{"startDate", "endDate"},
		ClarityEscalation: 3,
	}
}

// Validator produces validation reports. It holds no per-document state;
// Validate is pure and can be called any number of times.
type Validator struct {
	cfg Config
}

// New returns a Validator with the given configuration.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs every check unconditionally and scores the document.
func (v *Validator) Validate(doc *swap.AccumulatorDocument, identities []swap.LegIdentity) *swap.ValidationReport {
	report := &swap.ValidationReport{Findings: []swap.Finding{}}

	v.checkStructure(report, identities)
	ratio := v.checkCompleteness(report, doc, identities)
	v.checkClarity(report, doc)
	v.checkDataQuality(report, doc)
	v.checkConsistency(report, doc, identities)

	report.CompletenessRatio = ratio
	report.QualityTier = v.scoreTier(report)
	return report
}

// checkStructure validates the canonical slot layout: a vanilla swap has
// exactly two legs, an expected rate-type combination, and two distinct
// payers.
func (v *Validator) checkStructure(report *swap.ValidationReport, identities []swap.LegIdentity) {
	switch {
	case len(identities) < 2:
		add(report, swap.CategoryStructural, swap.SeverityWarning, "legs",
			fmt.Sprintf("only %d leg identified; a vanilla swap has two", len(identities)))
	case len(identities) > 2:
		add(report, swap.CategoryStructural, swap.SeverityWarning, "legs",
			fmt.Sprintf("%d legs identified; more than a vanilla swap's two", len(identities)))
	}

	if len(identities) == 2 {
		a, b := identities[0].RateType, identities[1].RateType
		if a == swap.RateTypeFixed && b == swap.RateTypeFixed {
			add(report, swap.CategoryStructural, swap.SeverityWarning, "legs.rateType",
				"unusual combination: both legs are FIXED")
		}
		if identities[0].PayerRef != "" && identities[0].PayerRef == identities[1].PayerRef {
			add(report, swap.CategoryStructural, swap.SeverityCritical, "legs.payerPartyReference",
				fmt.Sprintf("both legs name %q as payer", identities[0].PayerRef))
		}
	}
}

// checkCompleteness enumerates the critical field set and reports the
// present/total ratio. The rate-type-conditional field comes from the
// immutable leg identity, so the denominator is stable across merges and
// the ratio can only grow as passes land.
func (v *Validator) checkCompleteness(report *swap.ValidationReport, doc *swap.AccumulatorDocument, identities []swap.LegIdentity) float64 {
	var present, total int

	identity := map[string]bool{}
	for _, f := range v.cfg.HeaderIdentityFields {
		identity[f] = true
	}

	for _, field := range v.cfg.HeaderCriticalFields {
		total++
		if hasValue(doc.Header, field) {
			present++
			continue
		}
		severity := swap.SeverityWarning
		if identity[field] {
			severity = swap.SeverityCritical
		}
		add(report, swap.CategoryCompleteness, severity, "header."+field, "critical header field missing")
	}

	for slot, id := range identities {
		leg := map[string]any{}
		if slot < len(doc.Legs) {
			leg = doc.Legs[slot]
		}
		fields := append([]string{}, v.cfg.LegCriticalFields...)
		switch id.RateType {
		case swap.RateTypeFixed:
			fields = append(fields, "fixedRate")
		case swap.RateTypeFloating:
			fields = append(fields, "floatingRateIndex")
		}
		for _, field := range fields {
			total++
			if hasValue(leg, field) {
				present++
				continue
			}
			add(report, swap.CategoryCompleteness, swap.SeverityWarning,
				fmt.Sprintf("legs[%d].%s", slot, field), "critical leg field missing")
		}
	}

	for _, gap := range doc.Gaps {
		severity := swap.SeverityWarning
		if gap.Critical {
			severity = swap.SeverityCritical
		}
		add(report, swap.CategoryCompleteness, severity, "pass."+gap.Pass,
			fmt.Sprintf("%s: %s", gap.Kind, gap.Detail))
	}

	if total == 0 {
		return 0
	}
	return float64(present) / float64(total)
}

// checkClarity reports low-confidence markers left by the extraction
// passes or by correlation fallback. Each is an INFO until the count
// exceeds the configured threshold, after which they all escalate.
func (v *Validator) checkClarity(report *swap.ValidationReport, doc *swap.AccumulatorDocument) {
	severity := swap.SeverityInfo
	if len(doc.LowConfidence) > v.cfg.ClarityEscalation {
		severity = swap.SeverityWarning
	}
	for _, path := range sortedKeys(doc.LowConfidence) {
		add(report, swap.CategoryClarity, severity, path, doc.LowConfidence[path])
	}
}

// checkDataQuality rejects values that cannot be right regardless of the
// rest of the document.
func (v *Validator) checkDataQuality(report *swap.ValidationReport, doc *swap.AccumulatorDocument) {
	for slot, leg := range doc.Legs {
		if amount, ok := numberValue(leg["notionalAmount"]); ok && amount < 0 {
			add(report, swap.CategoryDataQuality, swap.SeverityCritical,
				fmt.Sprintf("legs[%d].notionalAmount", slot),
				fmt.Sprintf("negative notional amount %v", amount))
		}
		if !hasValue(leg, "rateType") {
			add(report, swap.CategoryDataQuality, swap.SeverityCritical,
				fmt.Sprintf("legs[%d].rateType", slot), "rate type missing")
		}
		for _, field := range v.cfg.LegDateFields {
			v.checkDate(report, leg, field, fmt.Sprintf("legs[%d].%s", slot, field))
		}
	}
	for _, field := range v.cfg.HeaderDateFields {
		v.checkDate(report, doc.Header, field, "header."+field)
	}
}

func (v *Validator) checkDate(report *swap.ValidationReport, m map[string]any, field, path string) {
	raw, ok := m[field]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		add(report, swap.CategoryDataQuality, swap.SeverityWarning, path,
			fmt.Sprintf("date field is not a string: %v", raw))
		return
	}
	if _, ok := swap.CanonicalDate(s); !ok {
		add(report, swap.CategoryDataQuality, swap.SeverityWarning, path,
			fmt.Sprintf("date %q does not match an accepted format", s))
	}
}

// checkConsistency enforces the cross-field FX rule: an fxFixing object
// must be present on a leg exactly when its notional currency differs
// from its settlement currency. Both directions of mismatch are CRITICAL.
func (v *Validator) checkConsistency(report *swap.ValidationReport, doc *swap.AccumulatorDocument, identities []swap.LegIdentity) {
	for slot, id := range identities {
		if slot >= len(doc.Legs) {
			continue
		}
		leg := doc.Legs[slot]

		notional := id.NotionalCurrency
		settlement := id.SettlementCurrency
		if s, ok := leg["notionalCurrency"].(string); ok && s != "" {
			notional = s
		}
		if s, ok := leg["settlementCurrency"].(string); ok && s != "" {
			settlement = s
		}
		if notional == "" || settlement == "" {
			continue
		}

		crossCurrency := notional != settlement
		_, hasFixing := leg["fxFixing"]

		label := id.LegLabel
		if label == "" {
			label = fmt.Sprintf("slot %d", slot)
		}

		if crossCurrency && !hasFixing {
			add(report, swap.CategoryConsistency, swap.SeverityCritical,
				fmt.Sprintf("legs[%d].fxFixing", slot),
				fmt.Sprintf("leg %s settles %s against a %s notional but has no FX fixing", label, settlement, notional))
		}
		if !crossCurrency && hasFixing {
			add(report, swap.CategoryConsistency, swap.SeverityCritical,
				fmt.Sprintf("legs[%d].fxFixing", slot),
				fmt.Sprintf("leg %s has an FX fixing but notional and settlement currency are both %s", label, notional))
		}
	}
}

// scoreTier derives the quality tier from the findings. A CRITICAL
// finding or any structural anomaly caps the tier at FAIR no matter how
// complete the document is.
func (v *Validator) scoreTier(report *swap.ValidationReport) swap.QualityTier {
	critical := report.HasCritical()
	warnings := report.CountBySeverity(swap.SeverityWarning)
	ratio := report.CompletenessRatio

	var tier swap.QualityTier
	switch {
	case ratio >= 0.90 && !critical && warnings <= 3:
		tier = swap.TierExcellent
	case ratio >= 0.75 && !critical && warnings <= 3:
		tier = swap.TierGood
	case ratio >= 0.60 && !critical:
		tier = swap.TierFair
	default:
		tier = swap.TierPoor
	}

	structural := false
	for _, f := range report.Findings {
		if f.Category == swap.CategoryStructural {
			structural = true
			break
		}
	}
	if (critical || structural) && (tier == swap.TierExcellent || tier == swap.TierGood) {
		tier = swap.TierFair
	}
	return tier
}

func add(report *swap.ValidationReport, cat swap.FindingCategory, sev swap.Severity, field, message string) {
	report.Findings = append(report.Findings, swap.Finding{
		Category: cat,
		Severity: sev,
		Field:    field,
		Message:  message,
	})
}

func hasValue(m map[string]any, field string) bool {
	v, ok := m[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
