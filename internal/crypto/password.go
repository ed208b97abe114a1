package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPasswordMismatch означает, что пароль не соответствует хешу
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrInvalidHash означает, что сохраненный хеш не удалось разобрать
	ErrInvalidHash = errors.New("invalid password hash format")

	// ErrIncompatibleVersion означает хеш, созданный другой версией argon2
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Params задает стоимость Argon2id
type Params struct {
	Memory  uint32 // объем памяти в KB
	Time    uint32 // количество итераций
	Threads uint8  // количество параллельных потоков
	SaltLen uint32 // размер соли в байтах
	KeyLen  uint32 // длина выходного ключа в байтах
}

// DefaultParams параметры Argon2id для серверного хеширования паролей
var DefaultParams = Params{
	Memory:  64 * 1024,
	Time:    1,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Hasher хеширует и проверяет пароли с помощью Argon2id.
// Результат кодируется в PHC-формате:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
//
// Параметры хранятся внутри хеша, поэтому проверка работает
// и после изменения Params.
type Hasher struct {
	params Params
}

// NewHasher создает Hasher с указанными параметрами
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash возвращает соленый одностороний хеш пароля
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify проверяет пароль против закодированного хеша.
// Возвращает ErrPasswordMismatch, если пароль не подходит.
func (h *Hasher) Verify(password, encodedHash string) error {
	params, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	// Сравнение за постоянное время
	if subtle.ConstantTimeCompare(computed, key) != 1 {
		return ErrPasswordMismatch
	}

	return nil
}

// decodeHash разбирает PHC-строку на параметры, соль и ключ
func decodeHash(encodedHash string) (Params, []byte, []byte, error) {
	var params Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return params, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, ErrInvalidHash
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		return params, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, ErrInvalidHash
	}
	params.SaltLen = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, ErrInvalidHash
	}
	params.KeyLen = uint32(len(key))

	return params, salt, key, nil
}
