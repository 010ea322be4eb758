package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"diary/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, resp testResponse) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == testCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", testCookieName)
	return nil
}

func TestRegister(t *testing.T) {
	_, app := newTestServer(t)

	resp := do(t, app, http.MethodPost, "/api/register", "", fiber.Map{"username": "alice", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))
	var out sessionResponse
	resp.decode(t, &out)
	assert.Equal(t, "alice", out.User.Username)
	assert.NotContains(t, string(resp.body), "correct-horse")
	assert.NotContains(t, string(resp.body), "password")

	cookie := sessionCookie(t, resp)
	assert.Equal(t, out.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate username", fiber.Map{"username": "alice", "password": "another-pass"}, http.StatusConflict, models.CodeConflict},
		{"short username", fiber.Map{"username": "al", "password": "correct-horse"}, http.StatusBadRequest, models.CodeValidation},
		{"bad characters", fiber.Map{"username": "al ice", "password": "correct-horse"}, http.StatusBadRequest, models.CodeValidation},
		{"short password", fiber.Map{"username": "bob", "password": "short"}, http.StatusBadRequest, models.CodeValidation},
		{"malformed body", "{", http.StatusBadRequest, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, "/api/register", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(resp.body))
			assert.Equal(t, tt.code, resp.errorBody(t).Code)
		})
	}
}

func TestLogin(t *testing.T) {
	_, app := newTestServer(t)
	register(t, app, "alice")

	resp := do(t, app, http.MethodPost, "/api/login", "", fiber.Map{"username": "alice", "password": "password-alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	var out sessionResponse
	resp.decode(t, &out)
	assert.Equal(t, "alice", out.User.Username)
	assert.NotEmpty(t, out.Token)

	for _, body := range []fiber.Map{
		{"username": "alice", "password": "wrong-password"},
		{"username": "nobody", "password": "password-alice"},
	} {
		resp := do(t, app, http.MethodPost, "/api/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid credentials", resp.errorBody(t).Error)
	}
}

func TestSessionCookieAuthenticates(t *testing.T) {
	_, app := newTestServer(t)

	resp := do(t, app, http.MethodPost, "/api/register", "", fiber.Map{"username": "alice", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCurrentUser(t *testing.T) {
	_, app := newTestServer(t)
	token, id := register(t, app, "alice")

	resp := do(t, app, http.MethodGet, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user models.User
	resp.decode(t, &user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)

	resp = do(t, app, http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := register(t, app, "alice")

	resp := do(t, app, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := sessionCookie(t, resp)
	assert.Empty(t, cleared.Value)

	resp = do(t, app, http.MethodGet, "/api/entries", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// logging out without a session is harmless
	resp = do(t, app, http.MethodPost, "/api/logout", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshRotatesToken(t *testing.T) {
	_, app := newTestServer(t)
	oldToken, id := register(t, app, "alice")

	resp := do(t, app, http.MethodPost, "/api/refresh", oldToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	var out sessionResponse
	resp.decode(t, &out)
	assert.Equal(t, id, out.User.ID)
	require.NotEqual(t, oldToken, out.Token)

	resp = do(t, app, http.MethodGet, "/api/user", out.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/user", oldToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
