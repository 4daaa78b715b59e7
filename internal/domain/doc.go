// Package domain re-exports the plain types (keys, envelopes, records, wire
// events, session snapshots) and the collaborator interfaces used across
// pqchat, so callers need a single import.
package domain
