// Package mapping transforms bank trade extracts (CSV) into the
// standardized trade document shape, driven by a YAML configuration per
// bank layout. The output feeds the comparison step as the trusted
// reference for a contract extraction.
package mapping

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Mapper applies one configuration to rows of one bank file.
type Mapper struct {
	cfg    *Config
	source string
	log    *slog.Logger
}

// New builds a Mapper. source is recorded into fields configured with
// dynamic_value: source_parameter, e.g. "banco" or "contrato".
func New(cfg *Config, source string, log *slog.Logger) *Mapper {
	return &Mapper{cfg: cfg, source: source, log: log.With("component", "trade-mapper", "source", source)}
}

// legRoles describes which input leg index feeds which output slot.
// Output slot 0 is always the leg the bank receives on, slot 1 the leg
// it pays on, so mapped documents share the extraction's canonical order.
type legRoles struct {
	receive int
	pay     int
}

// MapAll reads every CSV row and maps it to a trade document. Rows that
// fail to map are logged and skipped; one bad trade must not sink the
// batch.
func (m *Mapper) MapAll(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var trades []map[string]any
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		trade, err := m.MapRow(row)
		if err != nil {
			m.log.Error("Skipping trade row that failed to map.", "line", line, "deal", row["deal_number"], "error", err)
			continue
		}
		trades = append(trades, trade)
	}
	m.log.Info("Mapped bank trades.", "count", len(trades))
	return trades, nil
}

// MapRow maps one CSV row to a trade document with header and legs.
func (m *Mapper) MapRow(row map[string]string) (map[string]any, error) {
	roles, err := m.assignLegs(row)
	if err != nil {
		return nil, err
	}

	header := map[string]any{}
	for _, field := range sortedKeys(m.cfg.HeaderMappings) {
		value, err := m.mapField(m.cfg.HeaderMappings[field], row, fieldContext{receiveLeg: roles.receive})
		if err != nil {
			return nil, fmt.Errorf("header field %s: %w", field, err)
		}
		header[field] = value
	}

	receiveLeg, err := m.mapLeg(row, roles.receive, true)
	if err != nil {
		return nil, fmt.Errorf("receive leg: %w", err)
	}
	payLeg, err := m.mapLeg(row, roles.pay, false)
	if err != nil {
		return nil, fmt.Errorf("pay leg: %w", err)
	}

	return map[string]any{
		"header": header,
		"legs":   []any{receiveLeg, payLeg},
	}, nil
}

func (m *Mapper) assignLegs(row map[string]string) (legRoles, error) {
	roles := legRoles{receive: -1, pay: -1}
	for idx := 0; idx < 2; idx++ {
		field := strings.Replace(m.cfg.LegAssignment.RoleField, "{idx}", fmt.Sprint(idx), 1)
		switch row[field] {
		case m.cfg.LegAssignment.Roles["receive"]:
			roles.receive = idx
		case m.cfg.LegAssignment.Roles["pay"]:
			roles.pay = idx
		}
	}
	if roles.receive < 0 || roles.pay < 0 {
		return roles, fmt.Errorf("could not assign leg roles: need one receive and one pay marker")
	}
	return roles, nil
}

func (m *Mapper) mapLeg(row map[string]string, sourceIdx int, isReceive bool) (map[string]any, error) {
	leg := map[string]any{}
	if isReceive {
		leg["legId"] = "Pata-Activa"
		leg["payerPartyReference"] = "OurCounterparty"
		leg["receiverPartyReference"] = "ThisBank"
	} else {
		leg["legId"] = "Pata-Pasiva"
		leg["payerPartyReference"] = "ThisBank"
		leg["receiverPartyReference"] = "OurCounterparty"
	}

	ctx := fieldContext{legIdx: sourceIdx, isReceive: isReceive, hasLeg: true}
	for _, field := range sortedKeys(m.cfg.LegMappings) {
		value, err := m.mapField(m.cfg.LegMappings[field], row, ctx)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		leg[field] = value
	}

	for _, name := range sortedKeys(m.cfg.ConditionalLegMappings) {
		cond := m.cfg.ConditionalLegMappings[name]
		ok, err := checkCondition(cond.Condition, row, sourceIdx)
		if err != nil {
			return nil, fmt.Errorf("conditional mapping %s: %w", name, err)
		}
		if !ok {
			continue
		}
		ctx.legObject = leg
		for _, field := range sortedKeys(cond.Fields) {
			value, err := m.mapField(cond.Fields[field], row, ctx)
			if err != nil {
				return nil, fmt.Errorf("conditional field %s: %w", field, err)
			}
			leg[field] = value
		}
	}
	return leg, nil
}

// fieldContext carries the leg position being mapped into template and
// role resolution.
type fieldContext struct {
	legIdx     int
	receiveLeg int
	isReceive  bool
	hasLeg     bool
	legObject  map[string]any
}

// mapField evaluates one mapping node against the row. The node shapes
// mirror the configuration vocabulary: static_value, dynamic_value,
// source_field (with optional transformation and fallback_source),
// source_fields with primary/fallback or a calculation_type, role-keyed
// receive_leg/pay_leg values, reference_field, or a nested object of
// further mappings.
func (m *Mapper) mapField(node any, row map[string]string, ctx fieldContext) (any, error) {
	spec, ok := node.(map[string]any)
	if !ok {
		// Bare scalars are literal values.
		return node, nil
	}

	if v, ok := spec["static_value"]; ok {
		return v, nil
	}
	if v, ok := spec["dynamic_value"]; ok {
		if v == "source_parameter" {
			return m.source, nil
		}
		return nil, fmt.Errorf("unknown dynamic_value %v", v)
	}
	if v, ok := spec["receive_leg"]; ok {
		if ctx.isReceive {
			return v, nil
		}
		return spec["pay_leg"], nil
	}
	if ref, ok := spec["reference_field"].(string); ok {
		return resolveReference(ref, ctx.legObject), nil
	}

	if fields, ok := spec["source_fields"].(map[string]any); ok {
		if calc, ok := spec["calculation_type"].(string); ok {
			return m.calculatePeriod(fields, calc, row, ctx)
		}
		return m.mapPrimaryFallback(fields, spec, row, ctx)
	}

	if field, ok := spec["source_field"].(string); ok {
		value := row[resolveTemplate(field, ctx)]
		if value == "" {
			if fb, ok := spec["fallback_source"].(string); ok {
				value = row[resolveTemplate(fb, ctx)]
			}
		}
		if t, ok := spec["transformation"].(string); ok {
			return m.transform(value, t)
		}
		return value, nil
	}

	// Nested object: every entry is itself a mapping.
	result := map[string]any{}
	for _, field := range sortedKeys(spec) {
		value, err := m.mapField(spec[field], row, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		result[field] = value
	}
	return result, nil
}

func (m *Mapper) mapPrimaryFallback(fields map[string]any, spec map[string]any, row map[string]string, ctx fieldContext) (any, error) {
	primary, _ := fields["primary"].(string)
	value := row[resolveTemplate(primary, ctx)]
	if value == "" {
		if fb, ok := fields["fallback"].(string); ok {
			value = row[resolveTemplate(fb, ctx)]
		}
	}
	if t, ok := spec["transformation"].(string); ok {
		return m.transform(value, t)
	}
	return value, nil
}

// resolveTemplate substitutes leg position placeholders in a CSV column
// name, e.g. "legs[{idx}].leg_generator.rp".
func resolveTemplate(field string, ctx fieldContext) string {
	if ctx.hasLeg {
		field = strings.Replace(field, "{idx}", fmt.Sprint(ctx.legIdx), -1)
	}
	return strings.Replace(field, "{receive_leg_idx}", fmt.Sprint(ctx.receiveLeg), -1)
}

// resolveReference walks a dot path through fields already mapped onto
// the current leg. Unresolvable references default to the Santiago
// business center, the contracts' home calendar.
func resolveReference(path string, leg map[string]any) any {
	var current any = leg
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return []any{"CLSA"}
		}
		current, ok = obj[part]
		if !ok {
			return []any{"CLSA"}
		}
	}
	return current
}

// checkCondition evaluates the two condition forms the configurations
// use: `<field> in ['A', 'B']` and `<field> is not empty`.
func checkCondition(condition string, row map[string]string, legIdx int) (bool, error) {
	if condition == "" {
		return false, nil
	}
	condition = strings.Replace(condition, "{idx}", fmt.Sprint(legIdx), -1)

	if field, found := strings.CutSuffix(condition, " is not empty"); found {
		return row[strings.TrimSpace(field)] != "", nil
	}

	if field, rest, found := strings.Cut(condition, " in ["); found {
		value := row[strings.TrimSpace(field)]
		for _, candidate := range strings.Split(strings.TrimSuffix(rest, "]"), ",") {
			if value == strings.Trim(strings.TrimSpace(candidate), "'") {
				return true, nil
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("unsupported condition: %s", condition)
}
