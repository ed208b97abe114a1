package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLen максимальная длина отображаемого имени
	MaxNameLen = 64
	// MaxEmailLen максимальная длина email (RFC 5321)
	MaxEmailLen = 254
	// MaxPasswordLen ограничивает размер входа для хеширования
	MaxPasswordLen = 128
	// MaxRoleLen максимальная длина названия роли
	MaxRoleLen = 32
)

// ValidateName проверяет отображаемое имя пользователя
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if utf8.RuneCountInString(name) > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}

	return nil
}

// ValidateEmail проверяет, что email является одиночным адресом без display name.
// Регистр не нормализуется: "T@example.com" и "t@example.com" разные адреса.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("email is not a valid address")
	}

	return nil
}

// ValidatePassword проверяет требования к паролю
// Пароль не может быть пустым и не может превышать MaxPasswordLen байт
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	return nil
}

// ValidateRole проверяет произвольное название роли
func ValidateRole(role string) error {
	if role == "" {
		return fmt.Errorf("role cannot be empty")
	}

	if len(role) > MaxRoleLen {
		return fmt.Errorf("role must not exceed %d characters", MaxRoleLen)
	}

	if strings.ContainsAny(role, " \t\r\n") {
		return fmt.Errorf("role cannot contain whitespace")
	}

	return nil
}
