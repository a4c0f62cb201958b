package handlers

// KeySummary describes a key on the admin listing. It never carries the secret.
type KeySummary struct {
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
	UsageCount  int64   `json:"usage_count"`
	LastUsed    *string `json:"last_used"`
	IsActive    bool    `json:"is_active"`
}

// CreateKeyRequest is the body of POST /admin/api-keys.
type CreateKeyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateKeyResponse returns a new secret. This is the only time the secret
// leaves the relay.
type CreateKeyResponse struct {
	Message     string `json:"message"`
	APIKey      string `json:"api_key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// KeyStatusRequest is the body of PUT /admin/api-keys/{name}/status.
// IsActive is a pointer so a missing field can be told apart from false.
type KeyStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// KeyStatusResponse confirms a status change.
type KeyStatusResponse struct {
	Message  string `json:"message"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}
