// Package pipeline coordinates one contract's extraction run: the
// blocking core pass that establishes leg identities, the parallel
// secondary passes, the serialized merges, and the final validation. All
// run state lives on a per-run value; nothing is shared across contracts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmfuenzalida/contractreaderflow/internal/correlate"
	"github.com/jmfuenzalida/contractreaderflow/internal/extraction"
	"github.com/jmfuenzalida/contractreaderflow/internal/merge"
	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
	"github.com/jmfuenzalida/contractreaderflow/internal/validate"
)

// State names a coordinator phase. FAILED is absorbing; the terminal
// document is only emitted from DONE.
type State string

const (
	StateInit             State = "INIT"
	StateCoreRunning      State = "CORE_RUNNING"
	StateCoreDone         State = "CORE_DONE"
	StateSecondaryRunning State = "SECONDARY_RUNNING"
	StateMerged           State = "MERGED"
	StateValidated        State = "VALIDATED"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// ErrCoreExtraction marks the one fatal condition: without a core pass
// there are no leg identities and nothing to merge into.
var ErrCoreExtraction = errors.New("core extraction failed")

// PassOutcome records how one pass ended for the run summary.
type PassOutcome struct {
	Pass   string `json:"pass"`
	Status string `json:"status"` // "merged", "failed", "discarded"
	Detail string `json:"detail,omitempty"`
}

// Result is the output of a completed run: the merged document, its
// validation report, and the canonical identities the merge was aligned
// against.
type Result struct {
	Document   *swap.AccumulatorDocument
	Report     *swap.ValidationReport
	Identities []swap.LegIdentity
	Outcomes   []PassOutcome
}

// Coordinator runs contracts through the extraction pipeline. It is
// stateless across runs and safe for concurrent use; each Run gets its
// own accumulator and identity snapshot.
type Coordinator struct {
	policy    Policy
	merger    *merge.Merger
	validator *validate.Validator
	log       *slog.Logger
}

// New builds a Coordinator from a policy. The concurrency limit is
// clamped here so a hand-built zero-value policy cannot stall the
// secondary stage with SetLimit(0).
func New(policy Policy, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if policy.MaxConcurrentPasses < 1 {
		policy.MaxConcurrentPasses = 1
	}
	correlator := correlate.New(policy.Correlation)
	return &Coordinator{
		policy:    policy,
		merger:    merge.New(correlator, policy.IdentityFields),
		validator: validate.New(policy.Validation),
		log:       log,
	}
}

// run is the per-contract context object: one accumulator, one identity
// snapshot, one mutex serializing merge commits.
type run struct {
	acc        *swap.AccumulatorDocument
	identities []swap.LegIdentity
	outcomes   []PassOutcome
	state      State
	mu         sync.Mutex
	log        *slog.Logger
}

func (r *run) transition(next State) {
	r.log.Info("Pipeline state transition.", "from", string(r.state), "to", string(next))
	r.state = next
}

// Run processes one contract end to end. The core pass is sequential and
// fatal on failure; the secondary passes run in parallel and their
// failures degrade the report instead of aborting the run.
func (c *Coordinator) Run(ctx context.Context, contractText string, core extraction.PassInvoker, secondary []extraction.PassInvoker) (*Result, error) {
	r := &run{state: StateInit, log: c.log}

	r.transition(StateCoreRunning)
	coreDoc, err := core.Invoke(ctx, contractText, nil)
	if err != nil {
		r.transition(StateFailed)
		return nil, fmt.Errorf("%w: pass %s: %v", ErrCoreExtraction, core.Name(), err)
	}
	coreDoc.Pass = core.Name()
	coreDoc.Core = true

	r.identities, err = swap.BuildLegIdentities(coreDoc)
	if err != nil {
		r.transition(StateFailed)
		return nil, fmt.Errorf("%w: pass %s: %v", ErrCoreExtraction, core.Name(), err)
	}
	r.transition(StateCoreDone)

	r.acc = swap.NewAccumulator(r.identities)
	if err := c.apply(r, coreDoc); err != nil {
		r.transition(StateFailed)
		return nil, fmt.Errorf("%w: merging core pass: %v", ErrCoreExtraction, err)
	}
	r.outcomes = append(r.outcomes, PassOutcome{Pass: core.Name(), Status: "merged"})

	r.transition(StateSecondaryRunning)
	c.runSecondary(ctx, r, contractText, secondary)
	r.transition(StateMerged)

	report := c.validator.Validate(r.acc, r.identities)
	r.transition(StateValidated)

	c.log.Info("Pipeline run complete.",
		"legs", len(r.identities),
		"qualityTier", string(report.QualityTier),
		"completeness", report.CompletenessRatio,
		"findings", len(report.Findings),
	)
	r.transition(StateDone)

	return &Result{
		Document:   r.acc,
		Report:     report,
		Identities: r.identities,
		Outcomes:   r.outcomes,
	}, nil
}

// runSecondary dispatches every secondary pass and waits for all of them,
// success or explicit failure, before returning. Merges commit under the
// run mutex one at a time; because merges are commutative, completion
// order does not affect the final document.
func (c *Coordinator) runSecondary(ctx context.Context, r *run, contractText string, passes []extraction.PassInvoker) {
	identities := append([]swap.LegIdentity{}, r.identities...)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.policy.MaxConcurrentPasses)

	for _, pass := range passes {
		eg.Go(func() error {
			passCtx := gctx
			if c.policy.SecondaryPassTimeout > 0 {
				var cancel context.CancelFunc
				passCtx, cancel = context.WithTimeout(gctx, time.Duration(c.policy.SecondaryPassTimeout))
				defer cancel()
			}

			doc, err := pass.Invoke(passCtx, contractText, identities)
			r.mu.Lock()
			defer r.mu.Unlock()

			switch {
			case err == nil:
				doc.Pass = pass.Name()
				if mergeErr := c.merger.Apply(r.acc, doc, identities); mergeErr != nil {
					c.log.Error("Merge failed; pass discarded.", "pass", pass.Name(), "error", mergeErr)
					r.acc.RecordGap(swap.Gap{
						Pass: pass.Name(), Kind: swap.GapMalformed, Detail: mergeErr.Error(), Critical: true,
					})
					r.outcomes = append(r.outcomes, PassOutcome{Pass: pass.Name(), Status: "discarded", Detail: mergeErr.Error()})
					return nil
				}
				r.outcomes = append(r.outcomes, PassOutcome{Pass: pass.Name(), Status: "merged"})
			case errors.Is(err, swap.ErrMalformedDocument):
				c.log.Warn("Pass returned malformed document; discarded.", "pass", pass.Name(), "error", err)
				r.acc.RecordGap(swap.Gap{
					Pass: pass.Name(), Kind: swap.GapMalformed, Detail: err.Error(), Critical: true,
				})
				r.outcomes = append(r.outcomes, PassOutcome{Pass: pass.Name(), Status: "discarded", Detail: err.Error()})
			default:
				c.log.Warn("Secondary pass failed; continuing without it.", "pass", pass.Name(), "error", err)
				r.acc.RecordGap(swap.Gap{
					Pass: pass.Name(), Kind: swap.GapPassFailed, Detail: err.Error(),
				})
				r.outcomes = append(r.outcomes, PassOutcome{Pass: pass.Name(), Status: "failed", Detail: err.Error()})
			}
			return nil
		})
	}

	// Workers never return errors; individual failures are recorded as
	// gaps above. Wait only synchronizes.
	_ = eg.Wait()
}

// apply commits one merge under the run mutex.
func (c *Coordinator) apply(r *run, doc *swap.PartialDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.merger.Apply(r.acc, doc, r.identities)
}
