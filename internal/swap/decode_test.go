package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePartial(t *testing.T) {
	doc, err := DecodePartial([]byte(`{
		"header": {"tradeId": "IRS-2024-001"},
		"legs": [
			{"legId": "Pata-Activa", "rateType": "FIXED"},
			{"legId": "Pata-Pasiva", "rateType": "FLOATING"}
		]
	}`), "core")
	require.NoError(t, err)

	assert.Equal(t, "core", doc.Pass)
	assert.Equal(t, "IRS-2024-001", doc.Header["tradeId"])
	require.Len(t, doc.Legs, 2)
	assert.Equal(t, "Pata-Pasiva", doc.Legs[1]["legId"])
}

func TestDecodePartialLegsOnly(t *testing.T) {
	doc, err := DecodePartial([]byte(`{"legs": [{"settlementType": "CASH"}]}`), "settlement")
	require.NoError(t, err)
	assert.Empty(t, doc.Header)
	assert.Len(t, doc.Legs, 1)
}

func TestDecodePartialIgnoresUnknownKeys(t *testing.T) {
	doc, err := DecodePartial([]byte(`{"header": {"tradeId": "T1"}, "commentary": "irrelevant"}`), "core")
	require.NoError(t, err)
	assert.Equal(t, "T1", doc.Header["tradeId"])
}

func TestDecodePartialMalformed(t *testing.T) {
	cases := map[string]string{
		"not JSON":           `the contract says...`,
		"top-level array":    `[{"header": {}}]`,
		"header not object":  `{"header": "IRS-2024-001"}`,
		"legs not array":     `{"legs": {"legId": "Pata-Activa"}}`,
		"leg not object":     `{"legs": ["Pata-Activa"]}`,
		"empty object":       `{}`,
		"header+legs absent": `{"commentary": "nothing useful"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePartial([]byte(payload), "settlement")
			require.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestBuildLegIdentities(t *testing.T) {
	doc, err := DecodePartial([]byte(`{
		"header": {"tradeId": "T1"},
		"legs": [
			{"legId": "Pata-Activa", "rateType": "FIXED", "notionalCurrency": "CLF",
			 "settlementCurrency": "CLP", "payerPartyReference": "OurCounterparty",
			 "receiverPartyReference": "ThisBank"},
			{"legId": "Pata-Pasiva", "rateType": "FLOATING", "notionalCurrency": "CLP",
			 "settlementCurrency": "CLP", "payerPartyReference": "ThisBank",
			 "receiverPartyReference": "OurCounterparty"}
		]
	}`), "core")
	require.NoError(t, err)

	identities, err := BuildLegIdentities(doc)
	require.NoError(t, err)
	require.Len(t, identities, 2)

	assert.Equal(t, 0, identities[0].SlotIndex)
	assert.Equal(t, "Pata-Activa", identities[0].LegLabel)
	assert.Equal(t, RateTypeFixed, identities[0].RateType)
	assert.Equal(t, "CLF", identities[0].NotionalCurrency)
	assert.Equal(t, "ThisBank", identities[1].PayerRef)
}

func TestBuildLegIdentitiesNoLegs(t *testing.T) {
	_, err := BuildLegIdentities(&PartialDocument{Header: map[string]any{"tradeId": "T1"}})
	require.Error(t, err)

	_, err = BuildLegIdentities(nil)
	require.Error(t, err)
}

func TestAccumulatorLowConfidenceKeepsFirstReason(t *testing.T) {
	acc := NewAccumulator(make([]LegIdentity, 2))
	acc.MarkLowConfidence("legs[0]", "first")
	acc.MarkLowConfidence("legs[0]", "second")
	assert.Equal(t, "first", acc.LowConfidence["legs[0]"])
}
