// Package middleware exposes HTTP adapters that guard venue endpoints with
// enrolled-device credentials.
//
// # Guards
//
//   - [RequireDevice]: rejects requests without a valid device credential.
//   - [RequireCapability]: additionally requires a named capability claim.
//
// Each guard reads the Authorization header, calls Engine.ValidateCredential,
// and injects the parsed claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// verify token signatures or touch Redis itself; all decisions are delegated
// to the Engine.
package middleware
