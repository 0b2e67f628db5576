package enums

// AccountRole gates the admin configuration surface.
type AccountRole string

const (
	AccountRoleCustomer AccountRole = "customer"
	AccountRoleAdmin    AccountRole = "admin"
)

// IsValid reports whether the value is a known AccountRole.
func (r AccountRole) IsValid() bool {
	return r == AccountRoleCustomer || r == AccountRoleAdmin
}
