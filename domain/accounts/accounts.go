package accounts

import "time"

// User is an application account. Users authenticate with username/password
// and operate within their currently selected family space.
type User struct {
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	CurrentSpace   string    `json:"current_space,omitempty"`
	InviteCodeUsed string    `json:"invite_code_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Invite is a single-use registration code. Registration consumes the code,
// flipping Active off and recording who used it.
type Invite struct {
	Code      string    `json:"code"`
	Active    bool      `json:"active"`
	UsedBy    string    `json:"used_by,omitempty"`
	UsedEmail string    `json:"used_email,omitempty"`
	UsedAt    time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Space is a tenant boundary holding one family tree: its members,
// relations, and versions.
type Space struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
