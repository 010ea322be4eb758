package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"diary/internal/bootstrap"
	"diary/internal/config"
	"diary/internal/models"
	"diary/internal/repository"
	"diary/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testCookieName = "diary_session"

func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "test",
		JWTSecret:             "test-secret-key-12345678901234567890123456789012",
		JWTIssuer:             "diary-api",
		JWTAudience:           "diary-client",
		SessionCookieName:     testCookieName,
		SessionTTLHours:       1,
		StorageDriver:         config.StorageMemory,
		AllowedOrigins:        "http://localhost:5173",
		AuthRateLimit:         10,
		AuthRateWindowSeconds: 60,
	}
}

func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	rt := &bootstrap.Runtime{Store: repository.NewMemoryStore()}
	s := NewServerWithDeps(testConfig(), rt, WithAuthOptions(service.WithPasswordCost(bcrypt.MinCost)))
	return s, s.App()
}

type testResponse struct {
	*http.Response
	body []byte
}

func (r testResponse) decode(t *testing.T, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dest), string(r.body))
}

func (r testResponse) errorBody(t *testing.T) models.ErrorResponse {
	t.Helper()
	var e models.ErrorResponse
	r.decode(t, &e)
	return e
}

func do(t *testing.T, app *fiber.App, method, path, token string, body any) testResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return testResponse{Response: resp, body: data}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// register creates a user and returns its session token and id.
func register(t *testing.T, app *fiber.App, username string) (string, uint) {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/register", "", fiber.Map{
		"username": username,
		"password": "password-" + username,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))

	var out sessionResponse
	resp.decode(t, &out)
	require.NotEmpty(t, out.Token)
	return out.Token, out.User.ID
}

func TestEntryOwnershipScenario(t *testing.T) {
	_, app := newTestServer(t)
	alice, aliceID := register(t, app, "alice")
	bob, _ := register(t, app, "bob")

	resp := do(t, app, http.MethodPost, "/api/entries", alice, fiber.Map{"title": "Day 1", "content": "Hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))
	var created models.DiaryEntry
	resp.decode(t, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, aliceID, created.UserID)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	path := "/api/entries/" + itoa(created.ID)

	resp = do(t, app, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, resp.errorBody(t).Code)
	assert.NotContains(t, string(resp.body), "Hello")

	resp = do(t, app, http.MethodPatch, path, alice, fiber.Map{"title": "Day 1 v2", "content": "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	var updated models.DiaryEntry
	resp.decode(t, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, aliceID, updated.UserID)
	assert.Equal(t, "Day 1 v2", updated.Title)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	resp = do(t, app, http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.body)

	resp = do(t, app, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, resp.errorBody(t).Code)
}

func TestEntriesRequireSession(t *testing.T) {
	_, app := newTestServer(t)

	tests := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodGet, "/api/entries", ""},
		{http.MethodPost, "/api/entries", ""},
		{http.MethodGet, "/api/entries/1", ""},
		{http.MethodPatch, "/api/entries/1", ""},
		{http.MethodDelete, "/api/entries/1", ""},
		{http.MethodGet, "/api/entries/not-a-number", ""},
		{http.MethodGet, "/api/entries", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, app, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, models.CodeUnauthorized, resp.errorBody(t).Code)
		})
	}
}

func TestNonNumericEntryIDIsNotFound(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := register(t, app, "carol")

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := do(t, app, method, "/api/entries/abc", token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, method)
	}
	resp := do(t, app, http.MethodPatch, "/api/entries/0", token, fiber.Map{"title": "t", "content": "c"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateEntryValidation(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := register(t, app, "dave")

	resp := do(t, app, http.MethodPost, "/api/entries", token, fiber.Map{"title": "", "content": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := resp.errorBody(t)
	assert.Equal(t, models.CodeValidation, e.Code)
	assert.Equal(t, []models.FieldError{
		{Field: "title", Message: "Title is required"},
		{Field: "content", Message: "Content is required"},
	}, e.Fields)

	resp = do(t, app, http.MethodPost, "/api/entries", token, "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/entries", token, nil)
	assert.JSONEq(t, "[]", string(resp.body))

	// whitespace is still a non-empty string
	resp = do(t, app, http.MethodPost, "/api/entries", token, fiber.Map{"title": " ", "content": "Hello"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))
}

func TestTokenForUnknownUserIsAnonymous(t *testing.T) {
	s, app := newTestServer(t)
	ghost, _, err := s.tokens.Issue(42, "ghost")
	require.NoError(t, err)

	resp := do(t, app, http.MethodPost, "/api/entries", ghost, fiber.Map{"title": "x", "content": "y"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/entries", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, app, http.MethodGet, "/api/ws", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	entries, err := s.store.GetEntries(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// a token naming a real id under another username does not authenticate either
	_, aliceID := register(t, app, "alice")
	impostor, _, err := s.tokens.Issue(aliceID, "mallory")
	require.NoError(t, err)
	resp = do(t, app, http.MethodGet, "/api/entries", impostor, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateChecksOwnershipBeforeValidation(t *testing.T) {
	_, app := newTestServer(t)
	alice, _ := register(t, app, "alice")
	bob, _ := register(t, app, "bob")

	resp := do(t, app, http.MethodPost, "/api/entries", alice, fiber.Map{"title": "Private", "content": "Secret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entry models.DiaryEntry
	resp.decode(t, &entry)
	path := "/api/entries/" + itoa(entry.ID)

	tests := []struct {
		name   string
		token  string
		path   string
		body   any
		status int
	}{
		{"other user, invalid fields", bob, path, fiber.Map{"title": "", "content": ""}, http.StatusForbidden},
		{"other user, malformed body", bob, path, "{", http.StatusForbidden},
		{"missing entry, invalid fields", alice, "/api/entries/9999", fiber.Map{"title": ""}, http.StatusNotFound},
		{"owner, missing content", alice, path, fiber.Map{"title": "Only a title"}, http.StatusBadRequest},
		{"owner, malformed body", alice, path, "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPatch, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(resp.body))
		})
	}

	resp = do(t, app, http.MethodGet, path, alice, nil)
	var unchanged models.DiaryEntry
	resp.decode(t, &unchanged)
	assert.Equal(t, "Private", unchanged.Title)
	assert.Equal(t, "Secret", unchanged.Content)
}

func TestListEntriesIsScopedAndNewestFirst(t *testing.T) {
	_, app := newTestServer(t)
	alice, _ := register(t, app, "alice")
	bob, _ := register(t, app, "bob")

	for _, title := range []string{"first", "second", "third"} {
		resp := do(t, app, http.MethodPost, "/api/entries", alice, fiber.Map{"title": title, "content": "x"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := do(t, app, http.MethodPost, "/api/entries", bob, fiber.Map{"title": "bob's", "content": "y"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/entries", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.DiaryEntry
	resp.decode(t, &list)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "first", list[2].Title)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}

func TestEntryJSONUsesCamelCase(t *testing.T) {
	_, app := newTestServer(t)
	token, _ := register(t, app, "erin")

	resp := do(t, app, http.MethodPost, "/api/entries", token, fiber.Map{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var raw map[string]any
	resp.decode(t, &raw)
	for _, key := range []string{"id", "userId", "title", "content", "createdAt", "updatedAt"} {
		assert.Contains(t, raw, key)
	}
	_, err := time.Parse(time.RFC3339Nano, raw["createdAt"].(string))
	assert.NoError(t, err)
}

func TestEntryMutationsNotifyOwner(t *testing.T) {
	s, app := newTestServer(t)
	token, userID := register(t, app, "frank")

	client, err := s.hub.Register(userID, nil)
	require.NoError(t, err)

	resp := do(t, app, http.MethodPost, "/api/entries", token, fiber.Map{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var entry models.DiaryEntry
	resp.decode(t, &entry)

	resp = do(t, app, http.MethodDelete, "/api/entries/"+itoa(entry.ID), token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Len(t, client.Send, 2)
	var created, deleted models.EntryEvent
	require.NoError(t, json.Unmarshal(<-client.Send, &created))
	require.NoError(t, json.Unmarshal(<-client.Send, &deleted))
	assert.Equal(t, models.EntryCreated, created.Type)
	assert.Equal(t, models.EntryDeleted, deleted.Type)
	assert.Equal(t, entry.ID, deleted.EntryID)
	assert.Equal(t, userID, deleted.UserID)
}

func TestWebSocketEndpoint(t *testing.T) {
	_, app := newTestServer(t)

	resp := do(t, app, http.MethodGet, "/api/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _ := register(t, app, "grace")
	resp = do(t, app, http.MethodGet, "/api/ws", token, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	_, app := newTestServer(t)

	resp := do(t, app, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status  string            `json:"status"`
		Storage string            `json:"storage"`
		Checks  map[string]string `json:"checks"`
	}
	resp.decode(t, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, config.StorageMemory, body.Storage)
	assert.Equal(t, "disabled", body.Checks["database"])
	assert.Equal(t, "disabled", body.Checks["redis"])

	resp = do(t, app, http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResponsesCarryTraceID(t *testing.T) {
	_, app := newTestServer(t)
	resp := do(t, app, http.MethodGet, "/health/live", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
}
