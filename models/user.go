package models

// Role restricts what a user may see inside a tenant
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// User is a read-only snapshot from the user directory. Admins receive
// alerts for every device in their tenant; viewers only for devices listed
// in DeviceIDs. Email is the primary contact channel; PhoneNumber plus
// WhatsAppAPIKey enable the optional secondary channel at the delivery
// gateway.
type User struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenant_id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           Role     `json:"role"`
	DeviceIDs      []string `json:"device_ids,omitempty"`
	PhoneNumber    string   `json:"phone_number,omitempty"`
	WhatsAppAPIKey string   `json:"whatsapp_api_key,omitempty"`
}
