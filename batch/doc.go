// Package batch dispatches N independent rows to LLM providers concurrently,
// one call per row, and assembles row-aligned output with token-usage and
// prompt-prefix-cache accounting.
//
// Guarantees:
//
//   - A row failure never aborts sibling rows; errors render as markers in
//     the row's output slot.
//   - In-flight calls are bounded per (provider, model).
//   - Output order matches input order regardless of completion order.
//   - Configuration errors (unknown provider, missing model, bad
//     credentials) fail the batch before any network traffic.
//
// The pipeline is plan, group, dispatch, validate, aggregate, assemble; the
// Engine facade drives all six stages behind a single Run call.
package batch
