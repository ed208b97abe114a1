package models

import "time"

// Role задает уровень доступа пользователя (например, "admin" или "user")
type Role string

const (
	// RoleAdmin роль администратора
	RoleAdmin Role = "admin"
	// RoleUser роль по умолчанию для зарегистрированных пользователей
	RoleUser Role = "user"
)

// User представляет учетную запись пользователя в хранилище
type User struct {
	CreatedAt    time.Time  `json:"created_at"`           // время создания
	UpdatedAt    time.Time  `json:"updated_at"`           // время последнего обновления
	LastLogin    *time.Time `json:"last_login,omitempty"` // время последнего входа
	ID           string     `json:"id"`                   // UUID пользователя
	Name         string     `json:"name"`                 // отображаемое имя
	Email        string     `json:"email"`                // уникальный email (регистр учитывается)
	PasswordHash string     `json:"-"`                    // argon2id хеш пароля, никогда не сериализуется
	Role         Role       `json:"role"`                 // роль пользователя
}

// Identity is the sanitized view of a User: everything except the password hash.
// It is what gets attached to an authenticated request and returned to clients.
type Identity struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
}

// Identity returns a copy of the user without the password hash.
func (u *User) Identity() *Identity {
	if u == nil {
		return nil
	}

	id := &Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		id.LastLogin = &t
	}

	return id
}
