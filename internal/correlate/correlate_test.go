package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

func canonicalIdentities() []swap.LegIdentity {
	return []swap.LegIdentity{
		{
			SlotIndex:          0,
			LegLabel:           "Pata-Activa",
			NotionalCurrency:   "CLF",
			SettlementCurrency: "CLP",
			RateType:           swap.RateTypeFixed,
			PayerRef:           "OurCounterparty",
			ReceiverRef:        "ThisBank",
		},
		{
			SlotIndex:          1,
			LegLabel:           "Pata-Pasiva",
			NotionalCurrency:   "CLP",
			SettlementCurrency: "CLP",
			RateType:           swap.RateTypeFloating,
			PayerRef:           "ThisBank",
			ReceiverRef:        "OurCounterparty",
		},
	}
}

func TestCorrelateByRateType(t *testing.T) {
	c := New(DefaultWeights())
	slot, err := c.Correlate(map[string]any{"rateType": "FLOATING", "spread": 0.001}, canonicalIdentities())
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
}

func TestCorrelateByPartyPair(t *testing.T) {
	c := New(DefaultWeights())
	slot, err := c.Correlate(map[string]any{
		"payerPartyReference":    "OurCounterparty",
		"receiverPartyReference": "ThisBank",
		"settlementType":         "CASH",
	}, canonicalIdentities())
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
}

func TestCorrelateHardEvidenceBreaksCurrencyTie(t *testing.T) {
	// Both slots settle CLP, so the settlement currency alone cannot pick
	// a side; the rate type must.
	c := New(DefaultWeights())
	slot, err := c.Correlate(map[string]any{
		"rateType":           "FIXED",
		"settlementCurrency": "CLP",
	}, canonicalIdentities())
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
}

func TestCorrelateAmbiguous(t *testing.T) {
	identities := canonicalIdentities()
	identities[1].RateType = swap.RateTypeFixed

	c := New(DefaultWeights())
	_, err := c.Correlate(map[string]any{"rateType": "FIXED"}, identities)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestCorrelateNoMatch(t *testing.T) {
	c := New(DefaultWeights())

	// Soft evidence only never clears the bar.
	_, err := c.Correlate(map[string]any{"settlementCurrency": "CLP"}, canonicalIdentities())
	assert.ErrorIs(t, err, ErrNoMatch)

	// Hard evidence contradicting every slot disqualifies them all.
	_, err = c.Correlate(map[string]any{
		"payerPartyReference":    "SomeOtherBank",
		"receiverPartyReference": "ThisBank",
		"rateType":               "FIXED",
	}, canonicalIdentities())
	assert.ErrorIs(t, err, ErrNoMatch)

	// No identifying fields at all.
	_, err = c.Correlate(map[string]any{"paymentDateOffset": 2}, canonicalIdentities())
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestCorrelateDeterministic(t *testing.T) {
	c := New(DefaultWeights())
	leg := map[string]any{"rateType": "FLOATING", "notionalCurrency": "CLP"}
	first, err := c.Correlate(leg, canonicalIdentities())
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		slot, err := c.Correlate(leg, canonicalIdentities())
		require.NoError(t, err)
		require.Equal(t, first, slot)
	}
}

func TestHasIdentifyingKeys(t *testing.T) {
	assert.True(t, HasIdentifyingKeys(map[string]any{"rateType": "FIXED"}))
	assert.True(t, HasIdentifyingKeys(map[string]any{
		"payerPartyReference":    "A",
		"receiverPartyReference": "B",
	}))
	// A payer without a receiver is not a usable pair.
	assert.False(t, HasIdentifyingKeys(map[string]any{"payerPartyReference": "A"}))
	assert.False(t, HasIdentifyingKeys(map[string]any{"settlementCurrency": "CLP"}))
	assert.False(t, HasIdentifyingKeys(map[string]any{"rateType": ""}))
}
