package domain

// PermissionStaff grants access to the staff API
const PermissionStaff = "staff"

// AuthPayload is the claim set carried by staff tokens
type AuthPayload struct {
	Username   string   `json:"sub"`
	Permission []string `json:"permission"`
}

func (p AuthPayload) Has(permission string) bool {
	for _, granted := range p.Permission {
		if granted == permission {
			return true
		}
	}
	return false
}
