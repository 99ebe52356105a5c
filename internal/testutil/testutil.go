package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/database"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates a private in-memory SQLite database for one test.
// The pool is pinned to a single connection so every query sees the same
// in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// Logger returns a logger that drops everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func CreateTestOrg(t *testing.T, db *gorm.DB, name string) *models.Organization {
	t.Helper()

	org := &models.Organization{Name: name}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

func CreateTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	if email == "" {
		email = "test-" + uuid.New().String()[:8] + "@example.com"
	}
	user := &models.User{Email: &email, Enabled: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func AddTestMember(t *testing.T, db *gorm.DB, org *models.Organization, user *models.User, isOwner bool) {
	t.Helper()

	m := &models.OrganizationUser{OrganizationID: org.ID, UserID: user.ID, IsOwner: isOwner}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to add test member: %v", err)
	}
}

func CreateTestFolder(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string, parentID *string) *models.Folder {
	t.Helper()

	f := &models.Folder{OrganizationID: orgID, Name: name, ParentID: parentID}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("failed to create test folder: %v", err)
	}
	return f
}

// CreateTestDiagram stores a diagram. A non-empty code is stamped with a
// fresh version but not rendered.
func CreateTestDiagram(t *testing.T, db *gorm.DB, orgID uuid.UUID, code string, isPublic bool) *models.Diagram {
	t.Helper()

	d := &models.Diagram{OrganizationID: orgID, IsPublic: isPublic}
	if code != "" {
		d.SetCode(code)
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("failed to create test diagram: %v", err)
	}
	return d
}

func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, orgID uuid.UUID) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, orgID, user.EmailAddress())
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Logger     *slog.Logger
	Org        *models.Organization
	User       *models.User
	Token      string
}

// NewTestContext creates a database with one organization owned by one user,
// plus a token scoped to that organization.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db, "Test Organization")
	user := CreateTestUser(t, db, "")
	AddTestMember(t, db, org, user, true)
	token := GenerateTestToken(t, jwtService, user, org.ID)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Logger:     Logger(),
		Org:        org,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
