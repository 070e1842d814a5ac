package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmfuenzalida/contractreaderflow/internal/extraction"
	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// fakePass is a canned PassInvoker for driving the coordinator in tests.
type fakePass struct {
	name    string
	payload string
	err     error
	delay   time.Duration
}

func (p *fakePass) Name() string { return p.name }

func (p *fakePass) Invoke(ctx context.Context, _ string, _ []swap.LegIdentity) (*swap.PartialDocument, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return swap.DecodePartial([]byte(p.payload), p.name)
}

const coreBody = `{
	"header": {
		"tradeId": "IRS-2024-001",
		"tradeDate": "15/03/2024",
		"effectiveDate": "17/03/2024",
		"maturityDate": "17/03/2029",
		"counterparty": "Minera Andina SpA"
	},
	"legs": [
		{"legId": "Pata-Activa", "rateType": "FIXED", "notionalAmount": 50000,
		 "notionalCurrency": "CLF", "settlementCurrency": "CLP",
		 "payerPartyReference": "OurCounterparty", "receiverPartyReference": "ThisBank"},
		{"legId": "Pata-Pasiva", "rateType": "FLOATING", "notionalAmount": 1900000000,
		 "notionalCurrency": "CLP", "settlementCurrency": "CLP",
		 "payerPartyReference": "ThisBank", "receiverPartyReference": "OurCounterparty"}
	]
}`

func corePass() extraction.PassInvoker {
	return &fakePass{name: "core", payload: coreBody}
}

func settlementPass() extraction.PassInvoker {
	return &fakePass{name: "settlement", payload: `{
		"legs": [
			{"rateType": "FIXED", "settlementType": "CASH",
			 "fxFixing": {"fxRateIndex": "CLP_DOLAR_OBS_CLP10", "fxFixingLag": -2}},
			{"rateType": "FLOATING", "settlementType": "CASH"}
		]
	}`}
}

func ratesPass() extraction.PassInvoker {
	return &fakePass{name: "rates", payload: `{
		"legs": [
			{"rateType": "FIXED", "fixedRate": 0.0425},
			{"rateType": "FLOATING", "floatingRateIndex": "CLP-ICP"}
		]
	}`}
}

func TestRunMergesAllPasses(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	result, err := c.Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{settlementPass(), ratesPass()})
	require.NoError(t, err)

	assert.Equal(t, "IRS-2024-001", result.Document.Header["tradeId"])
	assert.Equal(t, "CASH", result.Document.Legs[0]["settlementType"])
	assert.Equal(t, 0.0425, result.Document.Legs[0]["fixedRate"])
	assert.Equal(t, "CLP-ICP", result.Document.Legs[1]["floatingRateIndex"])
	require.Len(t, result.Identities, 2)
	assert.Equal(t, "Pata-Activa", result.Identities[0].LegLabel)

	require.Len(t, result.Outcomes, 3)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, "merged", outcome.Status, "pass %s", outcome.Pass)
	}
	require.NotNil(t, result.Report)
	assert.Empty(t, result.Document.Gaps)
}

func TestRunCoreFailureIsFatal(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	_, err := c.Run(context.Background(), "contract text",
		&fakePass{name: "core", err: errors.New("model unavailable")},
		[]extraction.PassInvoker{settlementPass()})
	require.ErrorIs(t, err, ErrCoreExtraction)
}

func TestRunCoreWithoutLegsIsFatal(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	_, err := c.Run(context.Background(), "contract text",
		&fakePass{name: "core", payload: `{"header": {"tradeId": "T1"}}`},
		nil)
	require.ErrorIs(t, err, ErrCoreExtraction)
}

func TestRunSecondaryFailureDegrades(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	result, err := c.Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{
			settlementPass(),
			&fakePass{name: "schedule", err: errors.New("model unavailable")},
		})
	require.NoError(t, err)

	assert.Equal(t, "CASH", result.Document.Legs[0]["settlementType"])
	require.Len(t, result.Document.Gaps, 1)
	assert.Equal(t, swap.GapPassFailed, result.Document.Gaps[0].Kind)
	assert.Equal(t, "schedule", result.Document.Gaps[0].Pass)
	assert.False(t, result.Document.Gaps[0].Critical)
}

func TestRunMalformedPassDiscarded(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	result, err := c.Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{
			&fakePass{name: "rates", payload: `"just a string"`},
		})
	require.NoError(t, err)

	require.Len(t, result.Document.Gaps, 1)
	assert.Equal(t, swap.GapMalformed, result.Document.Gaps[0].Kind)
	assert.True(t, result.Document.Gaps[0].Critical)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "discarded", result.Outcomes[1].Status)
}

func TestRunSecondaryTimeout(t *testing.T) {
	policy := DefaultPolicy()
	policy.SecondaryPassTimeout = Duration(10 * time.Millisecond)

	c := New(policy, nil)
	result, err := c.Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{
			&fakePass{name: "slow", payload: `{"legs": []}`, delay: time.Second},
		})
	require.NoError(t, err)

	require.Len(t, result.Document.Gaps, 1)
	assert.Equal(t, swap.GapPassFailed, result.Document.Gaps[0].Kind)
	assert.Equal(t, "slow", result.Document.Gaps[0].Pass)
}

func TestRunWithZeroConcurrencyLimit(t *testing.T) {
	// A hand-built policy can carry a zero limit; SetLimit(0) would block
	// every secondary pass, so the constructor clamps it to one.
	policy := DefaultPolicy()
	policy.MaxConcurrentPasses = 0

	c := New(policy, nil)
	result, err := c.Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{settlementPass(), ratesPass()})
	require.NoError(t, err)

	assert.Equal(t, "CASH", result.Document.Legs[0]["settlementType"])
	assert.Equal(t, 0.0425, result.Document.Legs[0]["fixedRate"])
}

func TestRunResultIndependentOfSecondaryOrder(t *testing.T) {
	first, err := New(DefaultPolicy(), nil).Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{settlementPass(), ratesPass()})
	require.NoError(t, err)
	second, err := New(DefaultPolicy(), nil).Run(context.Background(), "contract text",
		corePass(), []extraction.PassInvoker{ratesPass(), settlementPass()})
	require.NoError(t, err)

	assert.Equal(t, first.Document.Header, second.Document.Header)
	assert.Equal(t, first.Document.Legs, second.Document.Legs)
	assert.Equal(t, first.Report.QualityTier, second.Report.QualityTier)
	assert.Equal(t, first.Report.CompletenessRatio, second.Report.CompletenessRatio)
}
