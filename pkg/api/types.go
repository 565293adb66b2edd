package api

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string
}

// DocumentResponse is returned by the document routes
type DocumentResponse struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	SyncToken uint64                 `json:"sync_token,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// TypeResponse describes a registered document type
type TypeResponse struct {
	Name        string          `json:"name"`
	Compression string          `json:"compression"`
	Fields      []FieldResponse `json:"fields"`
}

// FieldResponse describes one declared field
type FieldResponse struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}
