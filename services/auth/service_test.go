package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/authd/config"
	jwtservice "github.com/tech-arch1tect/authd/services/jwt"
	"github.com/tech-arch1tect/authd/services/password"
	"github.com/tech-arch1tect/authd/services/passwordreset"
	"github.com/tech-arch1tect/authd/services/refreshtoken"
	"github.com/tech-arch1tect/authd/services/tokenhash"
	"github.com/tech-arch1tect/authd/services/user"
	"github.com/tech-arch1tect/authd/testutils"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var testTelemetry = refreshtoken.Telemetry{IPAddress: "203.0.113.7", UserAgent: chromeMac}

func setupService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()

	db := testutils.SetupTestDB(t, &user.User{}, &refreshtoken.RefreshToken{}, &passwordreset.PasswordResetToken{})

	tokens, err := jwtservice.NewService(cfg, nil)
	require.NoError(t, err)

	return NewService(
		cfg,
		db,
		user.NewStore(db, nil),
		refreshtoken.NewService(db, nil),
		passwordreset.NewService(db, nil),
		tokens,
		password.NewHasher(cfg.Auth.BcryptCost, nil),
		nil,
		nil,
	)
}

func registerAndLogin(t *testing.T, svc *Service, deviceID string) (*user.User, *TokenPair) {
	t.Helper()
	ctx := context.Background()

	u, err := svc.users.FindByEmail(ctx, testutils.TestUsers.Email)
	if errors.Is(err, user.ErrUserNotFound) {
		u, err = svc.Register(ctx, testutils.TestUsers.Email, testutils.TestUsers.Password)
	}
	require.NoError(t, err)

	pair, err := svc.Login(ctx, testutils.TestUsers.Email, testutils.TestUsers.Password, deviceID, testTelemetry)
	require.NoError(t, err)
	return u, pair
}

func TestService_Register(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	t.Run("creates active user", func(t *testing.T) {
		u, err := svc.Register(ctx, "u@a.com", "pw1234")

		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, "u@a.com", u.Email)
		assert.True(t, u.IsActive)
		assert.NotEqual(t, "pw1234", u.PasswordHash)
	})

	t.Run("same email twice is taken", func(t *testing.T) {
		_, err := svc.Register(ctx, "u@a.com", "another1")
		assert.ErrorIs(t, err, ErrEmailTaken)

		_, err = svc.Register(ctx, "U@A.com", "another1")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"malformed email", "not-an-email", "pw1234"},
		{"display name form", "Someone <s@a.com>", "pw1234"},
		{"password too short", "short@a.com", "abc"},
		{"password over bcrypt limit", "long@a.com", strings.Repeat("x", password.MaxLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestService_RegisterLoginViewProfile(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	_, err := svc.Register(ctx, "u@a.com", "pw1234")
	require.NoError(t, err)

	pair, err := svc.Login(ctx, "u@a.com", "pw1234", "", testTelemetry)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Len(t, pair.SessionID, 32)

	authenticated, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	profile, err := svc.ViewProfile(ctx, authenticated.ID)
	require.NoError(t, err)
	assert.Equal(t, "u@a.com", profile.Email)
}

func TestService_Login(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, err := svc.Register(ctx, "u@a.com", "pw1234")
	require.NoError(t, err)

	t.Run("device id becomes session id", func(t *testing.T) {
		pair, err := svc.Login(ctx, "u@a.com", "pw1234", "device-a", testTelemetry)
		require.NoError(t, err)
		assert.Equal(t, "device-a", pair.SessionID)

		record, err := svc.sessions.FindByDigest(ctx, tokenhash.Digest(pair.RefreshToken))
		require.NoError(t, err)
		assert.Equal(t, "device-a", record.SessionID)
		assert.Equal(t, u.ID, record.UserID)
		assert.Equal(t, "203.0.113.7", record.IPAddress)
		assert.Equal(t, "Chrome on macOS", record.DeviceInfo)
		assert.WithinDuration(t, pair.RefreshExpiresAt, record.ExpiresAt, time.Second)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		_, err := svc.Login(ctx, "U@a.COM", "pw1234", "", testTelemetry)
		assert.NoError(t, err)
	})

	t.Run("rejections are indistinguishable", func(t *testing.T) {
		_, wrongPassword := svc.Login(ctx, "u@a.com", "nope1234", "", testTelemetry)
		_, unknownEmail := svc.Login(ctx, "nobody@a.com", "pw1234", "", testTelemetry)

		assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
		assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	})

	t.Run("inactive user cannot log in", func(t *testing.T) {
		other, err := svc.Register(ctx, "off@a.com", "pw1234")
		require.NoError(t, err)
		require.NoError(t, svc.users.SetActive(ctx, other.ID, false))

		_, err = svc.Login(ctx, "off@a.com", "pw1234", "", testTelemetry)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("device id longer than a session id", func(t *testing.T) {
		_, err := svc.Login(ctx, "u@a.com", "pw1234", strings.Repeat("d", MaxDeviceIDLength+1), testTelemetry)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_Refresh(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, first := registerAndLogin(t, svc, "device-a")

	t.Run("rotation is single use", func(t *testing.T) {
		second, err := svc.Refresh(ctx, first.RefreshToken, testTelemetry)
		require.NoError(t, err)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
		assert.Equal(t, first.SessionID, second.SessionID)

		_, err = svc.Refresh(ctx, first.RefreshToken, testTelemetry)
		assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)

		third, err := svc.Refresh(ctx, second.RefreshToken, testTelemetry)
		require.NoError(t, err)
		assert.Equal(t, "device-a", third.SessionID)
	})

	t.Run("access token is the wrong type", func(t *testing.T) {
		_, err := svc.Refresh(ctx, first.AccessToken, testTelemetry)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("garbage is an invalid token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not.a.jwt", testTelemetry)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("signed token unknown to the ledger", func(t *testing.T) {
		orphan, _, err := svc.tokens.IssueRefresh(u.ID)
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, orphan, testTelemetry)
		assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)
	})
}

func TestService_RefreshInactiveUser(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, pair := registerAndLogin(t, svc, "")
	require.NoError(t, svc.users.SetActive(ctx, u.ID, false))

	_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
	assert.ErrorIs(t, err, ErrInactiveOrMissingUser)

	// the presented token was consumed even though nothing was issued
	record, err := svc.sessions.FindByDigest(ctx, tokenhash.Digest(pair.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, record.RevokedAt)

	_, err = svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
	assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)
}

func TestService_RefreshRace(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	_, pair := registerAndLogin(t, svc, "")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)
	}
}

func TestService_Logout(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	_, pair := registerAndLogin(t, svc, "")

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
	assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)

	t.Run("always succeeds", func(t *testing.T) {
		assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
		assert.NoError(t, svc.Logout(ctx, "unknown"))
		assert.NoError(t, svc.Logout(ctx, ""))
	})
}

func TestService_LogoutAll(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, deviceA := registerAndLogin(t, svc, "device-a")
	_, deviceB := registerAndLogin(t, svc, "device-b")

	revoked, err := svc.LogoutAll(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	for _, pair := range []*TokenPair{deviceA, deviceB} {
		_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
		assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)
	}

	t.Run("second call revokes nothing", func(t *testing.T) {
		revoked, err := svc.LogoutAll(ctx, u.ID)
		require.NoError(t, err)
		assert.Zero(t, revoked)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.LogoutAll(ctx, 999)
		assert.ErrorIs(t, err, ErrInactiveOrMissingUser)
	})
}

func TestService_LogoutAllDuringLogins(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, _ := registerAndLogin(t, svc, "")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
		pairs []*TokenPair
	)

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pair, err := svc.Login(ctx, "u@a.com", "pw1234", "", testTelemetry)
			assert.NoError(t, err)
			mu.Lock()
			pairs = append(pairs, pair)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			n, err := svc.LogoutAll(ctx, u.ID)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	remaining, err := svc.LogoutAll(ctx, u.ID)
	require.NoError(t, err)

	// every session ever created was revoked exactly once
	assert.Equal(t, int64(len(pairs)+1), total+remaining)
}

func TestService_EditProfile(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, pair := registerAndLogin(t, svc, "")

	name := "Ada Lovelace"
	updated, err := svc.EditProfile(ctx, u.ID, user.ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Empty(t, updated.Phone)

	t.Run("sessions are untouched", func(t *testing.T) {
		_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
		assert.NoError(t, err)
	})

	t.Run("oversized phone", func(t *testing.T) {
		phone := strings.Repeat("1", 33)
		_, err := svc.EditProfile(ctx, u.ID, user.ProfileUpdate{Phone: &phone})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.EditProfile(ctx, 999, user.ProfileUpdate{FullName: &name})
		assert.ErrorIs(t, err, ErrInactiveOrMissingUser)
	})
}

func TestService_ChangePassword(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, deviceA := registerAndLogin(t, svc, "device-a")
	_, deviceB := registerAndLogin(t, svc, "device-b")

	t.Run("wrong old password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, u.ID, "wrong-old", testutils.TestPasswords.NewValid)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("new password too short", func(t *testing.T) {
		err := svc.ChangePassword(ctx, u.ID, testutils.TestUsers.Password, "short")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("revokes every session", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, u.ID, testutils.TestUsers.Password, testutils.TestPasswords.NewValid))

		for _, pair := range []*TokenPair{deviceA, deviceB} {
			_, err := svc.Refresh(ctx, pair.RefreshToken, testTelemetry)
			assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)
		}

		_, err := svc.Login(ctx, "u@a.com", testutils.TestUsers.Password, "", testTelemetry)
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "u@a.com", testutils.TestPasswords.NewValid, "", testTelemetry)
		assert.NoError(t, err)
	})
}

func TestService_ForgotAndResetPassword(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	_, stale := registerAndLogin(t, svc, "")

	resetToken, err := svc.ForgotPassword(ctx, "u@a.com")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	require.NoError(t, svc.ResetPassword(ctx, resetToken, testutils.TestPasswords.NewValid))

	err = svc.ResetPassword(ctx, resetToken, "another-pass1")
	assert.ErrorIs(t, err, ErrTokenUsed)

	_, err = svc.Refresh(ctx, stale.RefreshToken, testTelemetry)
	assert.ErrorIs(t, err, ErrRevokedOrUnknownToken)

	_, err = svc.Login(ctx, "u@a.com", testutils.TestPasswords.NewValid, "", testTelemetry)
	assert.NoError(t, err)
}

func TestService_ForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email still succeeds", func(t *testing.T) {
		svc := setupService(t, testutils.GetTestConfig())

		token, err := svc.ForgotPassword(ctx, "nobody@a.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("malformed email", func(t *testing.T) {
		svc := setupService(t, testutils.GetTestConfig())

		_, err := svc.ForgotPassword(ctx, "nope")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("production mails the link and returns nothing", func(t *testing.T) {
		svc := setupService(t, testutils.GetProductionTestConfig())
		mailer := &testutils.MockMailService{}
		svc.SetMailer(mailer)
		registerAndLogin(t, svc, "")

		var link string
		mailer.On("SendPasswordReset", mock.Anything, "u@a.com", mock.MatchedBy(func(l string) bool {
			link = l
			return strings.HasPrefix(l, "https://app.local/reset-password?token=")
		})).Return(nil).Once()

		token, err := svc.ForgotPassword(ctx, "u@a.com")
		require.NoError(t, err)
		assert.Empty(t, token)
		mailer.AssertExpectations(t)

		raw := strings.TrimPrefix(link, "https://app.local/reset-password?token=")
		assert.NoError(t, svc.ResetPassword(ctx, raw, testutils.TestPasswords.NewValid))
	})

	t.Run("production delivery failure is not reported", func(t *testing.T) {
		svc := setupService(t, testutils.GetProductionTestConfig())
		mailer := &testutils.MockMailService{}
		svc.SetMailer(mailer)
		registerAndLogin(t, svc, "")

		mailer.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		token, err := svc.ForgotPassword(ctx, "u@a.com")
		assert.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("production without mailer", func(t *testing.T) {
		svc := setupService(t, testutils.GetProductionTestConfig())
		registerAndLogin(t, svc, "")

		token, err := svc.ForgotPassword(ctx, "u@a.com")
		assert.NoError(t, err)
		assert.Empty(t, token)
	})
}

func TestService_ResetPasswordRejections(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, _ := registerAndLogin(t, svc, "")

	t.Run("unknown token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, "never-issued", testutils.TestPasswords.NewValid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, "", testutils.TestPasswords.NewValid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := svc.resets.Create(ctx, u.ID, tokenhash.Digest("stale-secret"), time.Now().Add(-time.Minute))
		require.NoError(t, err)

		err = svc.ResetPassword(ctx, "stale-secret", testutils.TestPasswords.NewValid)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("weak new password", func(t *testing.T) {
		token, err := svc.ForgotPassword(ctx, "u@a.com")
		require.NoError(t, err)

		err = svc.ResetPassword(ctx, token, "short")
		assert.ErrorIs(t, err, ErrValidation)

		// the token survives a rejected attempt
		assert.NoError(t, svc.ResetPassword(ctx, token, testutils.TestPasswords.NewValid))
	})
}

func TestService_Authenticate(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, pair := registerAndLogin(t, svc, "")

	t.Run("refresh token is the wrong type", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("tampered token", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, pair.AccessToken+"x")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("inactive user", func(t *testing.T) {
		require.NoError(t, svc.users.SetActive(ctx, u.ID, false))

		_, err := svc.Authenticate(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInactiveOrMissingUser)
	})
}

func TestService_ListSessions(t *testing.T) {
	svc := setupService(t, testutils.GetTestConfig())
	ctx := context.Background()

	u, deviceA := registerAndLogin(t, svc, "device-a")
	registerAndLogin(t, svc, "device-b")
	require.NoError(t, svc.Logout(ctx, deviceA.RefreshToken))

	sessions, err := svc.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "device-b", sessions[0].SessionID)
	assert.Equal(t, "Chrome on macOS", sessions[0].Device)
	assert.Equal(t, "203.0.113.7", sessions[0].IPAddress)
}

func TestService_Spans(t *testing.T) {
	cfg := testutils.GetTestConfig()
	svc := setupService(t, cfg)

	recorder := tracetest.NewSpanRecorder()
	svc.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	ctx := context.Background()
	_, err := svc.Register(ctx, "u@a.com", "pw1234")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "u@a.com", "wrong-pw", "", testTelemetry)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "auth.Register", spans[0].Name())
	assert.Equal(t, "auth.Login", spans[1].Name())
	assert.Len(t, spans[1].Events(), 1)
}
