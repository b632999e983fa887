package types

import "database/sql"

type User struct {
	ID           int
	Email        string
	Name         sql.NullString
	PasswordHash sql.NullString
	Provider     string
	ProviderSub  sql.NullString
	Role         string
	CreatedAt    string
}

// DisplayName is the name shown on pages and chat messages. Falls back to
// the email when the user never set a name.
func (u User) DisplayName() string {
	if u.Name.Valid && u.Name.String != "" {
		return u.Name.String
	}
	return u.Email
}

type Thread struct {
	ID        int
	Title     string
	Body      string
	UserID    sql.NullInt64
	CreatedAt string
}

type Reply struct {
	ID        int
	ThreadID  int
	UserID    sql.NullInt64
	Body      string
	CreatedAt string
}

type Category struct {
	ID        int
	Name      string
	Slug      string
	CreatedAt string
}

type Vote struct {
	ID         int
	EntityType string // "thread" or "reply"
	EntityID   int
	UserID     int
	Value      int // -1 or +1
	CreatedAt  string
}

type Reaction struct {
	ID         int
	EntityType string
	EntityID   int
	UserID     int
	Key        string
	CreatedAt  string
}

type Resume struct {
	ID        int
	Content   string
	UpdatedAt string
	UpdatedBy sql.NullInt64
}
