package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iudanet/authgate/internal/crypto"
	"github.com/iudanet/authgate/internal/mocks"
	"github.com/iudanet/authgate/internal/server/auth"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/internal/server/token"
)

var testHasher = crypto.NewHasher(crypto.Params{
	Memory:  8 * 1024,
	Time:    1,
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
})

var fixedNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTokenService(t *testing.T) *token.Service {
	t.Helper()
	s, err := token.NewService(token.Config{Secret: []byte("test-secret-key"), TTL: time.Hour},
		token.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s
}

func newTestService(t *testing.T, users storage.UserStorage, opts ...auth.Option) *auth.Service {
	t.Helper()
	base := []auth.Option{
		auth.WithPasswordHasher(testHasher),
		auth.WithClock(func() time.Time { return fixedNow }),
	}
	return auth.NewService(setupTestLogger(), users, newTokenService(t), append(base, opts...)...)
}

func storedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := testHasher.Hash(password)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Name:         "Tanish",
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	}
}

func TestService_Register_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	var created *models.User
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(nil, storage.ErrUserNotFound)
	users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		created = u
		return nil
	})

	s := newTestService(t, users)
	user, err := s.Register(context.Background(), auth.RegisterParams{
		Name:     "Tanish",
		Email:    "t@example.com",
		Password: "pw123",
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Same(t, created, user)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Tanish", user.Name)
	assert.Equal(t, "t@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, fixedNow, user.CreatedAt)
	assert.Equal(t, fixedNow, user.UpdatedAt)

	// Пароль хранится только в виде хеша
	assert.NotEqual(t, "pw123", user.PasswordHash)
	assert.NotContains(t, user.PasswordHash, "pw123")
	assert.NoError(t, testHasher.Verify("pw123", user.PasswordHash))
}

func TestService_Register_RoleSelection(t *testing.T) {
	tests := []struct {
		name     string
		opts     []auth.Option
		role     models.Role
		wantRole models.Role
	}{
		{name: "built-in default", wantRole: models.RoleUser},
		{name: "configured default", opts: []auth.Option{auth.WithDefaultRole("member")}, wantRole: "member"},
		{name: "explicit role wins", opts: []auth.Option{auth.WithDefaultRole("member")}, role: models.RoleAdmin, wantRole: models.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			users := mocks.NewMockUserStorage(ctrl)
			users.EXPECT().GetUserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrUserNotFound)
			users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(nil)

			s := newTestService(t, users, tt.opts...)
			user, err := s.Register(context.Background(), auth.RegisterParams{
				Name: "Tanish", Email: "t@example.com", Password: "pw123", Role: tt.role,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, user.Role)
		})
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	existing := storedUser(t, "t@example.com", "pw123")
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(existing, nil)

	s := newTestService(t, users)

	// Другое имя и пароль не имеют значения
	_, err := s.Register(context.Background(), auth.RegisterParams{
		Name: "Someone Else", Email: "t@example.com", Password: "different",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestService_Register_DuplicateEmailRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(nil, storage.ErrUserNotFound)
	users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(storage.ErrUserAlreadyExists)

	s := newTestService(t, users)
	_, err := s.Register(context.Background(), auth.RegisterParams{
		Name: "Tanish", Email: "t@example.com", Password: "pw123",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestService_Register_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		params    auth.RegisterParams
		lookupsDB bool
	}{
		{name: "empty name", params: auth.RegisterParams{Email: "t@example.com", Password: "pw123"}, lookupsDB: true},
		{name: "bad email", params: auth.RegisterParams{Name: "Tanish", Email: "not-an-email", Password: "pw123"}},
		{name: "empty email", params: auth.RegisterParams{Name: "Tanish", Password: "pw123"}},
		{name: "empty password", params: auth.RegisterParams{Name: "Tanish", Email: "t@example.com"}, lookupsDB: true},
		{name: "bad role", params: auth.RegisterParams{Name: "Tanish", Email: "t@example.com", Password: "pw123", Role: "two words"}, lookupsDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// CreateUser не должен вызываться, поиск по email только для валидного email
			users := mocks.NewMockUserStorage(ctrl)
			if tt.lookupsDB {
				users.EXPECT().GetUserByEmail(gomock.Any(), tt.params.Email).Return(nil, storage.ErrUserNotFound)
			}

			s := newTestService(t, users)
			_, err := s.Register(context.Background(), tt.params)
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
		})
	}
}

// Повторная регистрация занятого email дает ErrDuplicateEmail,
// даже если имя или пароль во втором запросе не проходят проверку
func TestService_Register_DuplicateEmailWithInvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		params auth.RegisterParams
	}{
		{name: "blank name", params: auth.RegisterParams{Name: "", Email: "t@example.com", Password: "pw123"}},
		{name: "blank password", params: auth.RegisterParams{Name: "Tanish", Email: "t@example.com", Password: ""}},
		{name: "blank name and password", params: auth.RegisterParams{Email: "t@example.com"}},
		{name: "bad role", params: auth.RegisterParams{Name: "Tanish", Email: "t@example.com", Password: "pw123", Role: "two words"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			users := mocks.NewMockUserStorage(ctrl)

			existing := storedUser(t, "t@example.com", "pw123")
			users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(existing, nil)

			s := newTestService(t, users)
			_, err := s.Register(context.Background(), tt.params)
			assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
			assert.NotErrorIs(t, err, auth.ErrInvalidInput)
		})
	}
}

func TestService_Register_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	dbErr := errors.New("database is locked")
	users.EXPECT().GetUserByEmail(gomock.Any(), gomock.Any()).Return(nil, dbErr)

	s := newTestService(t, users)
	_, err := s.Register(context.Background(), auth.RegisterParams{
		Name: "Tanish", Email: "t@example.com", Password: "pw123",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestService_Login_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	user := storedUser(t, "t@example.com", "pw123")
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(user, nil)
	users.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, fixedNow).Return(nil)

	tokens := newTokenService(t)
	s := auth.NewService(setupTestLogger(), users, tokens,
		auth.WithPasswordHasher(testHasher),
		auth.WithClock(func() time.Time { return fixedNow }))

	tok, err := s.Login(context.Background(), "t@example.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	userID, err := tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestService_Login_LastLoginFailureIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	user := storedUser(t, "t@example.com", "pw123")
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(user, nil)
	users.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, gomock.Any()).Return(errors.New("disk full"))

	s := newTestService(t, users)
	tok, err := s.Login(context.Background(), "t@example.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
}

func TestService_Login_InvalidCredentialsIndistinguishable(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	user := storedUser(t, "t@example.com", "pw123")
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(user, nil)
	users.EXPECT().GetUserByEmail(gomock.Any(), "nobody@example.com").Return(nil, storage.ErrUserNotFound)

	s := newTestService(t, users)

	tokWrongPassword, errWrongPassword := s.Login(context.Background(), "t@example.com", "wrong")
	tokNoUser, errNoUser := s.Login(context.Background(), "nobody@example.com", "pw123")

	assert.Nil(t, tokWrongPassword)
	assert.Nil(t, tokNoUser)
	require.ErrorIs(t, errWrongPassword, auth.ErrInvalidCredentials)
	require.ErrorIs(t, errNoUser, auth.ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword, errNoUser)
	assert.Equal(t, errWrongPassword.Error(), errNoUser.Error())
}

func TestService_Login_EmailCaseSensitive(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	// Хранилище получает email ровно в том виде, в каком его прислали
	users.EXPECT().GetUserByEmail(gomock.Any(), "T@Example.com").Return(nil, storage.ErrUserNotFound)

	s := newTestService(t, users)
	_, err := s.Login(context.Background(), "T@Example.com", "pw123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestService_Login_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	users.EXPECT().GetUserByEmail(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	s := newTestService(t, users)
	_, err := s.Login(context.Background(), "t@example.com", "pw123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestService_Login_CorruptedHash(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	user := storedUser(t, "t@example.com", "pw123")
	user.PasswordHash = "not-a-hash"
	users.EXPECT().GetUserByEmail(gomock.Any(), "t@example.com").Return(user, nil)

	s := newTestService(t, users)
	_, err := s.Login(context.Background(), "t@example.com", "pw123")
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrInvalidHash)
}

func TestService_Profile(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	user := storedUser(t, "t@example.com", "pw123")
	user.Name = "Renamed"
	users.EXPECT().GetUserByID(gomock.Any(), user.ID).Return(user, nil)

	s := newTestService(t, users)
	profile, err := s.Profile(context.Background(), &models.Identity{ID: user.ID, Name: "Tanish"})
	require.NoError(t, err)

	// Профиль перечитывается из хранилища
	assert.Equal(t, "Renamed", profile.Name)
	assert.Equal(t, user.Email, profile.Email)
	assert.Equal(t, user.Role, profile.Role)
}

func TestService_Profile_DeletedUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserStorage(ctrl)

	users.EXPECT().GetUserByID(gomock.Any(), "user-1").Return(nil, storage.ErrUserNotFound)

	s := newTestService(t, users)
	profile, err := s.Profile(context.Background(), &models.Identity{ID: "user-1"})
	assert.ErrorIs(t, err, auth.ErrProfileNotFound)
	assert.Nil(t, profile)
}

func TestService_Profile_NilIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newTestService(t, mocks.NewMockUserStorage(ctrl))

	_, err := s.Profile(context.Background(), nil)
	require.Error(t, err)
}
