package types

// Identity holds a user's long-term KEM key pair. It is created once at
// registration and never modified.
type Identity struct {
	Username   Username   `json:"username"`
	PublicKey  PublicKey  `json:"public_key"`
	PrivateKey PrivateKey `json:"private_key"`
}

// KeyDirectoryEntry is the public half of an identity, queryable by anyone.
type KeyDirectoryEntry struct {
	Username  Username  `json:"username"`
	PublicKey PublicKey `json:"publicKey"`
}
