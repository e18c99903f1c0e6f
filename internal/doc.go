// Package internal holds shared primitives for the tokengate module:
// bearer-secret generation, short-code generation, and hashing helpers.
// Nothing here is part of the public API.
package internal
