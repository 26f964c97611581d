// Package types holds the data model shared by every other package in the
// module: message and role types, usage and batch metrics, the unified
// error type with retryability, and the JSON Schema contract for
// structured output.
//
// The package deliberately imports nothing from the rest of the module.
package types
