// Package extraction defines the contract between the pipeline and the
// external language model that reads swap contracts. Each pass is a
// stateless invoker: contract text in, partial document out. The pipeline
// treats every pass as unreliable input; correlation and validation are
// the authorities, never the model.
package extraction

import (
	"context"

	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// PassInvoker is one extraction pass. The core pass reads the contract
// cold; secondary passes additionally receive the canonical leg context
// so the model can self-report in canonical order. The hint is best
// effort only and is re-verified by correlation after the fact.
type PassInvoker interface {
	// Name identifies the pass in logs, gaps, and provenance.
	Name() string

	// Invoke runs the pass over the contract text. legContext is nil for
	// the core pass. A non-nil error counts as a failed pass; the
	// pipeline records the gap and continues without retrying.
	Invoke(ctx context.Context, contractText string, legContext []swap.LegIdentity) (*swap.PartialDocument, error)
}
