// Package identity manages creation, encryption, publication and loading of
// the local identity.
//
// It enforces the passphrase policy, generates the long-term KEM key pair,
// persists it via the domain.IdentityStore and publishes the public half to
// the key directory.
package identity
