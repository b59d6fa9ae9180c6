// Package planner implements the change-set planner: given a task's
// changed files, it produces an ordered, token-bounded Batch Plan.
package planner

const (
	// DefaultCharsPerToken is the default heuristic ratio used to convert a
	// patch's byte length into an approximate token weight.
	DefaultCharsPerToken = 3.5

	// DefaultMaxTokensPerBatch is the default per-batch token ceiling.
	DefaultMaxTokensPerBatch = 100_000

	// DefaultContextMapTokens is the whole-repository context-map budget
	// tagged onto every batch. The planner never computes the map itself;
	// the assistant produces it.
	DefaultContextMapTokens = 262_144
)

// ChangedFile is one input to the planner: a file path with its patch text,
// in original change order.
type ChangedFile struct {
	Path  string
	Patch string
}

// Batch is a token-bounded subset of a task's changed files, submitted to
// the assistant in one subprocess invocation.
type Batch struct {
	Index    int
	Files    []string
	Oversize bool
}

// Plan is the ordered list of batches produced for one task.
type Plan struct {
	Batches          []Batch
	ContextMapTokens int
}

// Flatten returns every file across all batches in plan order. Flattening
// a plan yields exactly the input file list in original change order.
func (p Plan) Flatten() []string {
	var out []string
	for _, b := range p.Batches {
		out = append(out, b.Files...)
	}
	return out
}

// Weigher assigns a token weight to a file's patch text. ByteRatioWeigher is
// the default; a PreciseWeigher backed by tiktoken-go can be substituted
// when real token counts matter.
type Weigher interface {
	Weight(patch string) int
}

// ByteRatioWeigher implements the default heuristic: byte length divided by
// a configurable characters-per-token ratio.
type ByteRatioWeigher struct {
	CharsPerToken float64
}

// NewByteRatioWeigher constructs the default weigher, falling back to
// DefaultCharsPerToken for a non-positive ratio.
func NewByteRatioWeigher(charsPerToken float64) ByteRatioWeigher {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return ByteRatioWeigher{CharsPerToken: charsPerToken}
}

func (w ByteRatioWeigher) Weight(patch string) int {
	return int(float64(len(patch))/w.CharsPerToken) + 1
}

// Options configures a planning run.
type Options struct {
	MaxTokensPerBatch int
	ContextMapTokens  int
	Weigher           Weigher
}

// DefaultOptions returns the engine's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokensPerBatch: DefaultMaxTokensPerBatch,
		ContextMapTokens:  DefaultContextMapTokens,
		Weigher:           NewByteRatioWeigher(DefaultCharsPerToken),
	}
}

// PlanBatches builds the Batch Plan for a task's changed files:
//   - every file is assigned to exactly one batch;
//   - a file whose own weight exceeds MaxTokensPerBatch gets its own batch,
//     flagged oversize, and is still submitted;
//   - batches are filled greedily in change order until the next file would
//     exceed MaxTokensPerBatch;
//   - an empty change set produces a zero-batch plan;
//   - output is deterministic given identical inputs.
func PlanBatches(files []ChangedFile, opts Options) Plan {
	if opts.MaxTokensPerBatch <= 0 {
		opts.MaxTokensPerBatch = DefaultMaxTokensPerBatch
	}
	if opts.ContextMapTokens <= 0 {
		opts.ContextMapTokens = DefaultContextMapTokens
	}
	if opts.Weigher == nil {
		opts.Weigher = NewByteRatioWeigher(DefaultCharsPerToken)
	}

	plan := Plan{ContextMapTokens: opts.ContextMapTokens}
	if len(files) == 0 {
		return plan
	}

	var current []string
	var currentWeight int

	flush := func() {
		if len(current) == 0 {
			return
		}
		plan.Batches = append(plan.Batches, Batch{Index: len(plan.Batches), Files: current})
		current = nil
		currentWeight = 0
	}

	for _, f := range files {
		w := opts.Weigher.Weight(f.Patch)

		if w > opts.MaxTokensPerBatch {
			flush()
			plan.Batches = append(plan.Batches, Batch{
				Index:    len(plan.Batches),
				Files:    []string{f.Path},
				Oversize: true,
			})
			continue
		}

		if currentWeight+w > opts.MaxTokensPerBatch {
			flush()
		}
		current = append(current, f.Path)
		currentWeight += w
	}
	flush()

	return plan
}
