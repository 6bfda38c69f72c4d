package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleAuditor  Role = "auditor"
)

// Identity is the verified caller handed over by the auth layer.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (i Identity) CanReviewFraud() bool {
	return i.Role == RoleAdmin || i.Role == RoleAuditor
}
