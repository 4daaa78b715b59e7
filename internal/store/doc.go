// Package store provides persistence for pqchat.
//
// Client side, it keeps the passphrase-sealed identity (IdentityFileStore)
// and the account profile (AccountFileStore) as files under the configured
// home directory, written atomically via a temp file and rename.
//
// Relay side, RelayDB is a leveldb database serving both the public key
// directory (DirectoryDB) and the dual-envelope message log (MessageDB).
//
// All types are safe for concurrent use.
package store
