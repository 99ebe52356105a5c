package auth_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"github.com/hugh/easy-diagrams/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Login_NewUser(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	resp, err := svc.Login(ctx, "  Alice@X.com ")
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "alice@x.com", resp.User.EmailAddress())
	assert.NotNil(t, resp.User.ActivatedAt)
	assert.NotNil(t, resp.User.LastLoginAt)

	var org models.Organization
	require.NoError(t, tc.DB.First(&org, "id = ?", resp.OrganizationID).Error)
	assert.Equal(t, "alice@x.com's Organization", org.Name)

	var membership models.OrganizationUser
	require.NoError(t, tc.DB.Where("organization_id = ? AND user_id = ?", org.ID, resp.User.ID).First(&membership).Error)
	assert.True(t, membership.IsOwner)

	claims, err := tc.JWTService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, org.ID, claims.OrganizationID)
}

func TestService_Login_ExistingUser(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	resp, err := svc.Login(ctx, tc.User.EmailAddress())
	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, tc.User.ID, resp.User.ID)
	assert.Equal(t, tc.Org.ID, resp.OrganizationID, "scoped to the existing membership")

	var reloaded models.User
	require.NoError(t, tc.DB.First(&reloaded, "id = ?", tc.User.ID).Error)
	assert.NotNil(t, reloaded.LastLoginAt)
	assert.NotNil(t, reloaded.ActivatedAt)

	var count int64
	tc.DB.Model(&models.Organization{}).Count(&count)
	assert.Equal(t, int64(1), count, "no extra organization for existing users")
}

func TestService_Login_PicksOldestMembership(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)

	older := testutil.CreateTestOrg(t, tc.DB, "Older")
	testutil.AddTestMember(t, tc.DB, older, tc.User, false)
	require.NoError(t, tc.DB.Model(&models.OrganizationUser{}).
		Where("organization_id = ? AND user_id = ?", older.ID, tc.User.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	resp, err := svc.Login(testutil.TestContext(t), tc.User.EmailAddress())
	require.NoError(t, err)
	assert.Equal(t, older.ID, resp.OrganizationID)
}

func TestService_Login_UserWithoutMembership(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)

	orphan := testutil.CreateTestUser(t, tc.DB, "orphan@example.com")

	resp, err := svc.Login(testutil.TestContext(t), "orphan@example.com")
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, resp.User.ID)
	assert.NotEqual(t, uuid.Nil, resp.OrganizationID)
	assert.NotEqual(t, tc.Org.ID, resp.OrganizationID)
}

func TestService_Login_Errors(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.Login(ctx, "not-an-email")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("disabled user", func(t *testing.T) {
		user := testutil.CreateTestUser(t, tc.DB, "disabled@example.com")
		require.NoError(t, tc.DB.Model(user).Update("enabled", false).Error)

		_, err := svc.Login(ctx, "disabled@example.com")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestService_SwitchOrganization(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	other := testutil.CreateTestOrg(t, tc.DB, "Other")

	t.Run("not a member", func(t *testing.T) {
		_, err := svc.SwitchOrganization(ctx, tc.User.ID, other.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("member", func(t *testing.T) {
		testutil.AddTestMember(t, tc.DB, other, tc.User, false)

		resp, err := svc.SwitchOrganization(ctx, tc.User.ID, other.ID)
		require.NoError(t, err)

		claims, err := tc.JWTService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, other.ID, claims.OrganizationID)
	})
}

func TestService_GetUserByID(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	user, err := svc.GetUserByID(ctx, tc.User.ID)
	require.NoError(t, err)
	assert.Equal(t, tc.User.EmailAddress(), user.EmailAddress())

	_, err = svc.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestService_VerifySession(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	svc := auth.NewService(tc.DB, tc.JWTService, tc.Logger)
	ctx := testutil.TestContext(t)

	t.Run("member", func(t *testing.T) {
		assert.NoError(t, svc.VerifySession(ctx, tc.User.ID, tc.Org.ID))
		assert.NoError(t, svc.VerifySession(ctx, tc.User.ID, uuid.Nil))
	})

	t.Run("unknown user", func(t *testing.T) {
		err := svc.VerifySession(ctx, uuid.New(), uuid.Nil)
		assert.ErrorIs(t, err, auth.ErrSessionEnded)
		assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
	})

	t.Run("removed from organization", func(t *testing.T) {
		carol := testutil.CreateTestUser(t, tc.DB, "carol@example.com")
		testutil.AddTestMember(t, tc.DB, tc.Org, carol, false)
		require.NoError(t, svc.VerifySession(ctx, carol.ID, tc.Org.ID))

		require.NoError(t, tc.DB.Where("organization_id = ? AND user_id = ?", tc.Org.ID, carol.ID).
			Delete(&models.OrganizationUser{}).Error)

		assert.ErrorIs(t, svc.VerifySession(ctx, carol.ID, tc.Org.ID), auth.ErrSessionEnded)
		assert.NoError(t, svc.VerifySession(ctx, carol.ID, uuid.Nil), "the account itself is fine")
	})

	t.Run("deleted organization", func(t *testing.T) {
		assert.ErrorIs(t, svc.VerifySession(ctx, tc.User.ID, uuid.New()), auth.ErrSessionEnded)
	})

	t.Run("disabled user", func(t *testing.T) {
		dave := testutil.CreateTestUser(t, tc.DB, "dave@example.com")
		testutil.AddTestMember(t, tc.DB, tc.Org, dave, false)
		require.NoError(t, tc.DB.Model(dave).Update("enabled", false).Error)

		assert.ErrorIs(t, svc.VerifySession(ctx, dave.ID, tc.Org.ID), auth.ErrInactiveUser)
		assert.ErrorIs(t, svc.VerifySession(ctx, dave.ID, uuid.Nil), auth.ErrInactiveUser)
	})
}

func TestDummyProvider(t *testing.T) {
	p := auth.DummyProvider{}
	ctx := testutil.TestContext(t)

	req := httptest.NewRequest("GET", "/login/dummy/callback", nil)
	email, err := p.Email(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, auth.DummyEmail, email)

	req.Header.Set(auth.DummyEmailHeader, "bob@x.com")
	email, err = p.Email(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", email)

	assert.Equal(t, "/login/dummy/callback?state=a%2Bb", p.AuthCodeURL("a+b"))
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	p := auth.NewGoogleProvider("client-id", "secret", "http://localhost/login/google/callback")

	u := p.AuthCodeURL("xyz")
	assert.Contains(t, u, "accounts.google.com")
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "client_id=client-id")
}

func TestGoogleProvider_MissingCode(t *testing.T) {
	p := auth.NewGoogleProvider("client-id", "secret", "http://localhost/cb")

	_, err := p.Email(testutil.TestContext(t), httptest.NewRequest("GET", "/cb", nil))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = p.Email(testutil.TestContext(t), httptest.NewRequest("GET", "/cb?error=access_denied", nil))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
