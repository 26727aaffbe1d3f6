package user

import "time"

// User is the slice of the account subsystem this service depends on:
// resolving provider customers to users and flipping premium entitlement.
type User struct {
	ID string `db:"id" json:"id"`
	// ExternalCustomerID is the provider-assigned customer ID (optional,
	// set after first checkout)
	ExternalCustomerID *string `db:"external_customer_id" json:"external_customer_id,omitempty"`
	Email              string  `db:"email" json:"email"`
	Name               string  `db:"name" json:"name"`
	// Premium is the entitlement flag derived from holding at least one
	// active subscription
	Premium bool `db:"premium" json:"premium"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) TableName() string {
	return "users"
}
