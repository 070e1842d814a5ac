package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Code tables baked into the mapper. Bank extracts use the bank's own
// vocabulary; documents use the standardized one the extractions emit.
var (
	businessCenters = map[string][]string{
		"NY":         {"USNY"},
		"SCL":        {"CLSA"},
		"LON":        {"GBLO"},
		"NY-SCL":     {"USNY", "CLSA"},
		"LON-SCL":    {"GBLO", "CLSA"},
		"NY-LON-SCL": {"USNY", "GBLO", "CLSA"},
	}
	businessDayConventions = map[string]string{
		"MOD_FOLLOW": "MODFOLLOWING",
		"FOLLOW":     "FOLLOWING",
		"DONT_MOVE":  "NONE",
	}
	dayCountFractions = map[string]string{
		"LIN_ACT/360": "ACT/360",
	}
	floatingRateIndexes = map[string]string{
		"ICPCLP": "CLP-ICP",
	}
	settlementTypes = map[string]string{
		"C": "CASH",
		"E": "PHYSICAL",
	}
	fxRateIndexes = map[string]string{
		"USDOBS": "CLP_DOLAR_OBS_CLP10",
	}
	fxFixingPivots = map[string]string{
		"SETTLEMENT_DATE": "PAYMENT_DATES",
	}
	dateFormatLayouts = map[string]string{
		"YYYY-MM-DD": "2006-01-02",
		"DD/MM/YYYY": "02/01/2006",
		"MM/DD/YYYY": "01/02/2006",
		"YYYY/MM/DD": "2006/01/02",
	}
)

// transform applies a named transformation to a raw CSV value.
// Config-level transformations tables take precedence over the built-in
// code tables so a bank can override a single code without a release.
func (m *Mapper) transform(value, kind string) (any, error) {
	if table, ok := m.cfg.Transformations[kind]; ok {
		if mapped, ok := table[value]; ok {
			return mapped, nil
		}
		if kind != "fx_fixing_lag" {
			return nil, fmt.Errorf("unknown %s code: %q", kind, value)
		}
	}

	switch kind {
	case "date_format":
		return m.transformDate(value), nil
	case "integer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", value, err)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", value, err)
		}
		return f, nil
	case "notional":
		return transformNotional(value)
	case "rate_type":
		return transformRateType(value), nil
	case "business_centers":
		return lookupList(businessCenters, value, "business center calendar")
	case "business_day_convention":
		return lookup(businessDayConventions, value, "business day convention")
	case "day_count_fraction":
		return lookup(dayCountFractions, value, "day count fraction")
	case "floating_rate_index":
		return lookup(floatingRateIndexes, value, "floating rate index")
	case "settlement_type":
		return lookup(settlementTypes, value, "settlement mechanism")
	case "fx_rate_index":
		return lookup(fxRateIndexes, value, "FX rate index")
	case "fx_fixing_pivot":
		return lookup(fxFixingPivots, value, "FX fixing pivot")
	case "fx_fixing_lag":
		return transformFxFixingLag(value)
	}
	return nil, fmt.Errorf("unknown transformation type: %s", kind)
}

func lookup(table map[string]string, value, what string) (any, error) {
	mapped, ok := table[value]
	if !ok {
		return nil, fmt.Errorf("unknown %s: %q", what, value)
	}
	return mapped, nil
}

func lookupList(table map[string][]string, value, what string) (any, error) {
	mapped, ok := table[value]
	if !ok {
		return nil, fmt.Errorf("unknown %s: %q", what, value)
	}
	out := make([]any, len(mapped))
	for i, v := range mapped {
		out[i] = v
	}
	return out, nil
}

// transformDate converts a bank date to DD/MM/YYYY, trying the
// configured input format first and the other known layouts after.
// Unparseable dates pass through as-is so the comparison surfaces them.
func (m *Mapper) transformDate(value string) string {
	if value == "" {
		return ""
	}
	configured := dateFormatLayouts[m.cfg.DateFormat]
	if configured == "" {
		configured = "2006-01-02"
	}
	if t, err := time.Parse(configured, value); err == nil {
		return t.Format("02/01/2006")
	}
	for _, layout := range dateFormatLayouts {
		if layout == configured {
			continue
		}
		if t, err := time.Parse(layout, value); err == nil {
			m.log.Warn("Date parsed with a layout other than the configured one.", "date", value, "configured", m.cfg.DateFormat)
			return t.Format("02/01/2006")
		}
	}
	m.log.Warn("Could not parse date, keeping raw value.", "date", value)
	return value
}

func transformRateType(legType string) string {
	switch legType {
	case "OVERNIGHT_INDEX_MCCY", "OVERNIGHT_INDEX":
		return "FLOATING"
	default:
		return "FIXED"
	}
}

// transformFxFixingLag maps the bank's lag encoding: a marker value of
// "1" means fixing two business days before payment.
func transformFxFixingLag(value string) (any, error) {
	if value == "1" {
		return -2, nil
	}
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid FX fixing lag %q: %w", value, err)
	}
	return n, nil
}

func transformNotional(value string) (any, error) {
	if value == "" {
		return nil, fmt.Errorf("notional amount cannot be empty")
	}
	clean := strings.NewReplacer(",", "", " ", "").Replace(value)
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid notional %q: %w", value, err)
	}
	return f, nil
}

// calculatePeriod derives a frequency code from the bank's split
// year/month/day period columns. Periods that span the whole trade are
// zero coupon: TERM for calculation periods, ATMATURITY for payment.
func (m *Mapper) calculatePeriod(fields map[string]any, calcType string, row map[string]string, ctx fieldContext) (any, error) {
	years, err := periodComponent(fields, "years", row, ctx)
	if err != nil {
		return nil, err
	}
	months, err := periodComponent(fields, "months", row, ctx)
	if err != nil {
		return nil, err
	}
	days, err := periodComponent(fields, "days", row, ctx)
	if err != nil {
		return nil, err
	}

	wholeTrade := func() any {
		if calcType == "payment_frequency" {
			return "ATMATURITY"
		}
		return "TERM"
	}

	// 25 years or more of period length never occurs on coupon-bearing
	// trades in these books.
	if years >= 25 {
		return wholeTrade(), nil
	}
	totalMonths := years*12 + months
	if totalMonths == 0 && days == 0 {
		return wholeTrade(), nil
	}

	if tradeMonths, ok := m.tradeTermMonths(fields, row, ctx); ok && totalMonths >= tradeMonths-1 {
		return wholeTrade(), nil
	}

	switch {
	case years > 0:
		return fmt.Sprintf("%dY", years), nil
	case months > 0:
		return fmt.Sprintf("%dM", months), nil
	case days > 0:
		return fmt.Sprintf("%dD", days), nil
	}
	return wholeTrade(), nil
}

func periodComponent(fields map[string]any, name string, row map[string]string, ctx fieldContext) (int, error) {
	field, ok := fields[name].(string)
	if !ok {
		return 0, fmt.Errorf("period calculation is missing the %s field", name)
	}
	raw := row[resolveTemplate(field, ctx)]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid period %s %q: %w", name, raw, err)
	}
	return n, nil
}

// tradeTermMonths compares the period against the trade's own start and
// end dates, when the config points at them.
func (m *Mapper) tradeTermMonths(fields map[string]any, row map[string]string, ctx fieldContext) (int, bool) {
	startField, ok := fields["start_date"].(string)
	if !ok {
		return 0, false
	}
	endField, ok := fields["end_date"].(string)
	if !ok {
		return 0, false
	}
	start, err := time.Parse("2006-01-02", row[resolveTemplate(startField, ctx)])
	if err != nil {
		return 0, false
	}
	end, err := time.Parse("2006-01-02", row[resolveTemplate(endField, ctx)])
	if err != nil {
		return 0, false
	}
	return (end.Year()-start.Year())*12 + int(end.Month()-start.Month()), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
