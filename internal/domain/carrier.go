package domain

// Carrier is a carrier reference record. TenantID is empty for shared records.
type Carrier struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TenantID string   `json:"tenant_id,omitempty"`
	SCAC     string   `json:"scac,omitempty"`
	Modes    []string `json:"modes,omitempty"`
}
