package types

// AccountProfile records which relay a local identity is registered with.
type AccountProfile struct {
	ServerURL string   `json:"server_url"`
	Username  Username `json:"username"`
	KEM       string   `json:"kem"`
}
