package panel

type CreatePeerRequest struct {
	UserID         string `json:"userId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Description    string `json:"description,omitempty"`
}

type PeerResponse struct {
	UUID           string `json:"uuid"`
	UserID         string `json:"userId"`
	IdempotencyKey string `json:"idempotencyKey"`
	PublicKey      string `json:"publicKey"`
	CreatedAt      string `json:"createdAt"` // ISO 8601 format
}

// Wrappers for API response envelopes
type APIResponse struct {
	Response PeerResponse `json:"response"`
}

type APIListResponse struct {
	Response []PeerResponse `json:"response"`
}
