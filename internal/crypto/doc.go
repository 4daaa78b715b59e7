// Package crypto exposes the primitives used by pqchat.
//
// Contents
//
//   - A KEM abstraction with ML-KEM-768 and sntrup4591761 implementations,
//     resolved once by name (NewEngine)
//   - Identity key generation, capsule encapsulation and recovery (Engine)
//   - AES-256-GCM envelopes keyed by a KEM shared secret (Encrypt, Decrypt)
//   - Short public-key fingerprints for display (Fingerprint)
//
// # Notes
//
// Every function is pure apart from consuming entropy from crypto/rand.
// Failures are reported as sentinel errors wrapped with context; callers
// match them with errors.Is. A failed operation never hands back key material
// that could be mistaken for valid output.
package crypto
