package mapping

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		DateFormat: "YYYY-MM-DD",
		LegAssignment: LegAssignment{
			RoleField: "legs[{idx}].leg_generator.rp",
			Roles:     map[string]string{"receive": "A", "pay": "P"},
		},
		HeaderMappings: map[string]any{
			"tradeId": map[string]any{"source_field": "deal_number"},
			"tradeDate": map[string]any{
				"source_field":   "trade_date",
				"transformation": "date_format",
			},
			"source": map[string]any{"dynamic_value": "source_parameter"},
			"tradeType": map[string]any{"static_value": "InterestRateSwap"},
		},
		LegMappings: map[string]any{
			"rateType": map[string]any{
				"source_field":   "legs[{idx}].type_of_leg",
				"transformation": "rate_type",
			},
			"notionalAmount": map[string]any{
				"source_field":   "legs[{idx}].leg_generator.notional",
				"transformation": "notional",
			},
			"settlementType": map[string]any{
				"source_field":   "legs[{idx}].leg_generator.sett_mechanism",
				"transformation": "settlement_type",
			},
			"businessDayConvention": map[string]any{
				"source_field":   "legs[{idx}].leg_generator.bus_adj_rule",
				"transformation": "business_day_convention",
			},
			"businessCenters": map[string]any{
				"source_field":   "legs[{idx}].leg_generator.settlement_calendar",
				"transformation": "business_centers",
			},
			"paymentFrequency": map[string]any{
				"source_fields": map[string]any{
					"years":      "legs[{idx}].leg_generator.settlement_periodicity.agnos",
					"months":     "legs[{idx}].leg_generator.settlement_periodicity.meses",
					"days":       "legs[{idx}].leg_generator.settlement_periodicity.dias",
					"start_date": "legs[{idx}].leg_generator.start_date.fecha",
					"end_date":   "legs[{idx}].leg_generator.end_date.fecha",
				},
				"calculation_type": "payment_frequency",
			},
		},
		ConditionalLegMappings: map[string]ConditionalFields{
			"fixed_rate": {
				Condition: "legs[{idx}].type_of_leg in ['FIXED_RATE_MCCY', 'FIXED_RATE']",
				Fields: map[string]any{
					"fixedRate": map[string]any{
						"source_field":   "legs[{idx}].leg_generator.rate.value",
						"transformation": "float",
					},
				},
			},
			"floating_index": {
				Condition: "legs[{idx}].interest_rate_index is not empty",
				Fields: map[string]any{
					"floatingRateIndex": map[string]any{
						"source_field":   "legs[{idx}].interest_rate_index",
						"transformation": "floating_rate_index",
					},
				},
			},
		},
	}
}

func testRow() map[string]string {
	return map[string]string{
		"deal_number": "78901",
		"trade_date":  "2024-03-15",

		// Input leg 0 is the pay leg, leg 1 the receive leg, so the
		// mapper must swap them into canonical order.
		"legs[0].leg_generator.rp":                             "P",
		"legs[0].type_of_leg":                                  "OVERNIGHT_INDEX",
		"legs[0].interest_rate_index":                          "ICPCLP",
		"legs[0].leg_generator.notional":                       "1,900,000,000.00",
		"legs[0].leg_generator.sett_mechanism":                 "C",
		"legs[0].leg_generator.bus_adj_rule":                   "MOD_FOLLOW",
		"legs[0].leg_generator.settlement_calendar":            "SCL",
		"legs[0].leg_generator.settlement_periodicity.agnos":   "0",
		"legs[0].leg_generator.settlement_periodicity.meses":   "6",
		"legs[0].leg_generator.settlement_periodicity.dias":    "0",
		"legs[0].leg_generator.start_date.fecha":               "2024-03-17",
		"legs[0].leg_generator.end_date.fecha":                 "2029-03-17",

		"legs[1].leg_generator.rp":                             "A",
		"legs[1].type_of_leg":                                  "FIXED_RATE_MCCY",
		"legs[1].leg_generator.rate.value":                     "0.0425",
		"legs[1].leg_generator.notional":                       "50000.00",
		"legs[1].leg_generator.sett_mechanism":                 "C",
		"legs[1].leg_generator.bus_adj_rule":                   "MOD_FOLLOW",
		"legs[1].leg_generator.settlement_calendar":            "NY-SCL",
		"legs[1].leg_generator.settlement_periodicity.agnos":   "30",
		"legs[1].leg_generator.settlement_periodicity.meses":   "0",
		"legs[1].leg_generator.settlement_periodicity.dias":    "0",
		"legs[1].leg_generator.start_date.fecha":               "2024-03-17",
		"legs[1].leg_generator.end_date.fecha":                 "2029-03-17",
	}
}

func testMapper(t *testing.T) *Mapper {
	t.Helper()
	return New(testConfig(), "banco", slog.Default())
}

func TestMapRow(t *testing.T) {
	trade, err := testMapper(t).MapRow(testRow())
	require.NoError(t, err)

	header, ok := trade["header"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "78901", header["tradeId"])
	assert.Equal(t, "15/03/2024", header["tradeDate"])
	assert.Equal(t, "banco", header["source"])
	assert.Equal(t, "InterestRateSwap", header["tradeType"])

	legs, ok := trade["legs"].([]any)
	require.True(t, ok)
	require.Len(t, legs, 2)

	receive := legs[0].(map[string]any)
	assert.Equal(t, "Pata-Activa", receive["legId"])
	assert.Equal(t, "OurCounterparty", receive["payerPartyReference"])
	assert.Equal(t, "ThisBank", receive["receiverPartyReference"])
	assert.Equal(t, "FIXED", receive["rateType"])
	assert.Equal(t, 50000.0, receive["notionalAmount"])
	assert.Equal(t, 0.0425, receive["fixedRate"])
	assert.Equal(t, []any{"USNY", "CLSA"}, receive["businessCenters"])
	assert.NotContains(t, receive, "floatingRateIndex")

	pay := legs[1].(map[string]any)
	assert.Equal(t, "Pata-Pasiva", pay["legId"])
	assert.Equal(t, "ThisBank", pay["payerPartyReference"])
	assert.Equal(t, "FLOATING", pay["rateType"])
	assert.Equal(t, 1900000000.0, pay["notionalAmount"])
	assert.Equal(t, "CLP-ICP", pay["floatingRateIndex"])
	assert.Equal(t, "CASH", pay["settlementType"])
	assert.Equal(t, "MODFOLLOWING", pay["businessDayConvention"])
	assert.NotContains(t, pay, "fixedRate")
}

func TestMapRowPeriodCalculation(t *testing.T) {
	trade, err := testMapper(t).MapRow(testRow())
	require.NoError(t, err)
	legs := trade["legs"].([]any)

	// The receive leg's 30-year period spans the whole 5-year trade:
	// zero coupon, paid at maturity.
	assert.Equal(t, "ATMATURITY", legs[0].(map[string]any)["paymentFrequency"])
	// The pay leg pays every six months.
	assert.Equal(t, "6M", legs[1].(map[string]any)["paymentFrequency"])
}

func TestMapRowMissingRole(t *testing.T) {
	row := testRow()
	row["legs[0].leg_generator.rp"] = "X"
	_, err := testMapper(t).MapRow(row)
	require.Error(t, err)
}

func TestMapRowUnknownCode(t *testing.T) {
	row := testRow()
	row["legs[0].leg_generator.settlement_calendar"] = "TOKYO"
	_, err := testMapper(t).MapRow(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "business center calendar")
}

func TestMapAllSkipsBadRows(t *testing.T) {
	csvData := "deal_number,trade_date,legs[0].leg_generator.rp,legs[1].leg_generator.rp\n" +
		"1,2024-03-15,P,A\n" +
		"2,2024-03-16,P,P\n" // two pay legs: unmappable

	cfg := &Config{
		LegAssignment: LegAssignment{
			RoleField: "legs[{idx}].leg_generator.rp",
			Roles:     map[string]string{"receive": "A", "pay": "P"},
		},
		HeaderMappings: map[string]any{
			"tradeId": map[string]any{"source_field": "deal_number"},
		},
		LegMappings: map[string]any{
			"settlementType": map[string]any{"static_value": "CASH"},
		},
	}
	mapper := New(cfg, "banco", slog.Default())

	trades, err := mapper.MapAll(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	header := trades[0]["header"].(map[string]any)
	assert.Equal(t, "1", header["tradeId"])
}

func TestTransformFxFixingLag(t *testing.T) {
	got, err := transformFxFixingLag("1")
	require.NoError(t, err)
	assert.Equal(t, -2, got)

	got, err = transformFxFixingLag("")
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = transformFxFixingLag("3")
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestConfigTableOverridesBuiltin(t *testing.T) {
	cfg := testConfig()
	cfg.Transformations = map[string]map[string]any{
		"floating_rate_index": {"ICPCLP": "CLP-ICP-OVERRIDDEN"},
	}
	mapper := New(cfg, "banco", slog.Default())

	trade, err := mapper.MapRow(testRow())
	require.NoError(t, err)
	pay := trade["legs"].([]any)[1].(map[string]any)
	assert.Equal(t, "CLP-ICP-OVERRIDDEN", pay["floatingRateIndex"])
}
