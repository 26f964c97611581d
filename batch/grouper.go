package batch

import (
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/fanoutllm/fanout/tokenizer"
	"github.com/fanoutllm/fanout/types"
)

// Grouper annotates requests with cache classes before any dispatch, so no
// annotation is ever written concurrently.
type Grouper struct {
	counterFor func(model string) tokenizer.Counter
	logger     *zap.Logger
}

// NewGrouper creates a grouper. counterFor may be nil; the per-model
// selector is used then.
func NewGrouper(counterFor func(model string) tokenizer.Counter, logger *zap.Logger) *Grouper {
	if counterFor == nil {
		counterFor = tokenizer.ForModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{counterFor: counterFor, logger: logger}
}

// Annotate attaches a CacheAnnotation to every dispatchable request.
// Classification follows input row order: the first member of a group pays
// the cache write, later members read.
func (g *Grouper) Annotate(requests []*Request) {
	autoBoundaries := g.autoBoundaries(requests)

	seen := make(map[string]bool)
	for _, req := range requests {
		if req.PlanErr != nil {
			continue
		}
		d := req.Directive
		if d == nil || d.Strategy == CacheNone {
			req.Annotation = &CacheAnnotation{Class: ClassSkip}
			continue
		}

		boundary := 0
		switch d.Strategy {
		case CacheSystemPrompt, CacheSchema:
			boundary = leadingSystem(req.Messages)
		case CacheFullPrefix:
			boundary = len(req.Messages) - 1
		case CacheAuto:
			boundary = autoBoundaries[req]
		}
		if boundary <= 0 {
			req.Annotation = &CacheAnnotation{Class: ClassSkip}
			continue
		}

		prefixTokens := g.prefixTokens(req, boundary)
		if prefixTokens < d.MinTokens {
			g.logger.Debug("prefix below cache threshold",
				zap.Int("row", req.Index),
				zap.Int("prefix_tokens", prefixTokens),
				zap.Int("min_tokens", d.MinTokens))
			req.Annotation = &CacheAnnotation{Class: ClassSkip, PrefixTokens: prefixTokens}
			continue
		}

		key := d.CacheKey
		if key == "" {
			key = hashPrefix(req.Messages[:boundary], req.Provider, req.Model, d.scope())
		}
		class := ClassRead
		if !seen[key] {
			seen[key] = true
			class = ClassWrite
		}
		req.Annotation = &CacheAnnotation{
			PrefixBoundary: boundary,
			Class:          class,
			GroupKey:       key,
			PrefixTokens:   prefixTokens,
		}
	}
}

// autoBoundaries computes, per request, the deepest message boundary whose
// prefix is shared by at least two requests targeting the same provider and
// model.
func (g *Grouper) autoBoundaries(requests []*Request) map[*Request]int {
	counts := make(map[string]int)
	hashes := make(map[*Request][]string)
	for _, req := range requests {
		if req.PlanErr != nil || req.Directive == nil || req.Directive.Strategy != CacheAuto {
			continue
		}
		var hs []string
		// The final message always stays outside the prefix.
		for depth := 1; depth < len(req.Messages); depth++ {
			h := hashPrefix(req.Messages[:depth], req.Provider, req.Model, req.Directive.scope())
			hs = append(hs, h)
			counts[h]++
		}
		hashes[req] = hs
	}

	boundaries := make(map[*Request]int, len(hashes))
	for req, hs := range hashes {
		best := 0
		for depth, h := range hs {
			if counts[h] >= 2 {
				best = depth + 1
			}
		}
		boundaries[req] = best
	}
	return boundaries
}

func (g *Grouper) prefixTokens(req *Request, boundary int) int {
	counter := g.counterFor(req.Model)
	n, err := counter.CountMessages(req.Messages[:boundary])
	if err != nil {
		// Fall back to the character estimator rather than dropping the
		// annotation.
		n, _ = tokenizer.NewEstimator().CountMessages(req.Messages[:boundary])
	}
	return n
}

func leadingSystem(msgs []types.Message) int {
	n := 0
	for n < len(msgs) && msgs[n].Role == types.RoleSystem {
		n++
	}
	// A request that is nothing but system messages keeps the last one out
	// of the prefix.
	if n == len(msgs) {
		n--
	}
	return n
}

// hashPrefix derives the group key: two requests share one iff their
// messages are byte-identical up to the boundary, they target the same
// provider and model, and their directives agree.
func hashPrefix(prefix []types.Message, provider, model, scope string) string {
	h := sha256.New()
	for _, m := range prefix {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
