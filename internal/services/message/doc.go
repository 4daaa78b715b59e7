// Package message sends, receives and lists encrypted messages.
//
// Every message is encrypted twice: once for the peer and once for the
// sender's own copy. Both (capsule, envelope) pairs are written to the
// message store before the peer copy is relayed live, so either participant
// can later rebuild the full history with nothing but their private key.
package message
