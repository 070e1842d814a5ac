// Package correlate maps a leg object produced by an extraction pass to a
// canonical slot. Extraction passes have no shared memory of each other's
// output and the external model is not a trusted oracle of order, so slot
// membership is re-derived here from the leg's own identifying fields.
package correlate

import (
	"errors"

	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// ErrAmbiguous is returned when two or more canonical slots tie for the
// highest agreement score. The leg's contribution is dropped.
var ErrAmbiguous = errors.New("leg matches multiple canonical slots")

// ErrNoMatch is returned when no canonical slot clears the minimum
// agreement threshold. The leg's contribution is dropped.
var ErrNoMatch = errors.New("leg matches no canonical slot")

// Weights control how much each agreeing field contributes to a
// candidate's score. Rate type and the payer/receiver pair are hard
// evidence: when present in the leg object they must match exactly or the
// candidate is disqualified. The currencies are soft evidence only.
type Weights struct {
	RateType           float64 `yaml:"rateType"`
	PartyPair          float64 `yaml:"partyPair"`
	NotionalCurrency   float64 `yaml:"notionalCurrency"`
	SettlementCurrency float64 `yaml:"settlementCurrency"`
	MinScore           float64 `yaml:"minScore"`
}

// DefaultWeights returns the scoring weights used in production.
func DefaultWeights() Weights {
	return Weights{
		RateType:           1.0,
		PartyPair:          1.5,
		NotionalCurrency:   0.5,
		SettlementCurrency: 0.25,
		MinScore:           1.0,
	}
}

// Correlator scores leg objects against canonical leg identities.
type Correlator struct {
	weights Weights
}

// New returns a Correlator with the given weights.
func New(w Weights) *Correlator {
	return &Correlator{weights: w}
}

// Correlate determines which canonical slot the leg object belongs to.
// A slot is selected only when it is the unique highest-scoring candidate,
// its score clears the minimum threshold, and at least one piece of hard
// evidence (rate type or payer/receiver pair) agreed. The same inputs
// always produce the same outcome.
func (c *Correlator) Correlate(leg map[string]any, identities []swap.LegIdentity) (int, error) {
	var best []int
	bestScore := -1.0

	for _, id := range identities {
		score, hard, disqualified := c.score(leg, id)
		if disqualified || !hard || score < c.weights.MinScore {
			continue
		}
		switch {
		case score > bestScore:
			bestScore = score
			best = []int{id.SlotIndex}
		case score == bestScore:
			best = append(best, id.SlotIndex)
		}
	}

	switch len(best) {
	case 0:
		return -1, ErrNoMatch
	case 1:
		return best[0], nil
	default:
		return -1, ErrAmbiguous
	}
}

// score computes the weighted agreement between a leg object and one
// candidate identity. disqualified is true when hard evidence is present
// in the leg object but contradicts the candidate.
func (c *Correlator) score(leg map[string]any, id swap.LegIdentity) (score float64, hard, disqualified bool) {
	if rt, ok := legString(leg, "rateType"); ok && id.RateType != "" {
		if rt != string(id.RateType) {
			return 0, false, true
		}
		score += c.weights.RateType
		hard = true
	}

	payer, hasPayer := legString(leg, "payerPartyReference")
	receiver, hasReceiver := legString(leg, "receiverPartyReference")
	if hasPayer && hasReceiver && id.PayerRef != "" && id.ReceiverRef != "" {
		if payer != id.PayerRef || receiver != id.ReceiverRef {
			return 0, false, true
		}
		score += c.weights.PartyPair
		hard = true
	}

	if ccy, ok := legString(leg, "notionalCurrency"); ok && id.NotionalCurrency != "" && ccy == id.NotionalCurrency {
		score += c.weights.NotionalCurrency
	}
	if ccy, ok := legString(leg, "settlementCurrency"); ok && id.SettlementCurrency != "" && ccy == id.SettlementCurrency {
		score += c.weights.SettlementCurrency
	}
	return score, hard, false
}

// HasIdentifyingKeys reports whether the leg object carries any of the
// fields correlation can work with. When a whole document lacks them the
// merge may fall back to positional alignment.
func HasIdentifyingKeys(leg map[string]any) bool {
	if _, ok := legString(leg, "rateType"); ok {
		return true
	}
	_, hasPayer := legString(leg, "payerPartyReference")
	_, hasReceiver := legString(leg, "receiverPartyReference")
	return hasPayer && hasReceiver
}

func legString(leg map[string]any, key string) (string, bool) {
	v, ok := leg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
