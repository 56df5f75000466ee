// Package llm contains the provider-neutral completion boundary: requests with
// an optional output schema or function declarations, responses carrying text,
// a schema-conforming payload or a function-call directive, and the helpers
// that validate structured results against static schemas.
package llm
