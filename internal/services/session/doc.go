// Package session owns the conversation with the active peer.
//
// A Manager is a single goroutine that holds the session state of the local
// user. Every mutation (connecting, adopting a handshake, staging and
// swapping rotated keys, sealing and opening messages) is a command executed
// on that goroutine, so a key swap can never interleave with an encryption.
//
// States move Disconnected -> Connecting -> Connected -> Rotating ->
// Connected, and back to Disconnected on Disconnect or a peer switch.
//
// Rotation runs on two deadlines measured from the last adoption:
// PreGenerate stages fresh peer and self secrets in the background and Swap
// adopts them together as the next generation and announces the new capsule
// to the peer. If nothing is staged by Swap the cycle is skipped and retried.
package session
