package domain

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Name is what the UI shows for the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

type Client struct {
	ID        string
	Name      string
	Contact   string
	CreatedBy string
	CreatedAt time.Time
}
