package models

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	ServiceRef  string `json:"service_ref,omitempty"`
}
