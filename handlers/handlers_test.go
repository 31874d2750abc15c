package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	postgrest "github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"

	"edio/config"
	"edio/internal/realtime"
	"edio/internal/storage"
	"edio/internal/worker"
	"edio/internal/youtube"
	"edio/middleware"
)

const (
	testSessionSecret = "test-session-secret"
	testEncKey        = "0123456789abcdef0123456789abcdef"
	testEncIV         = "fedcba9876543210"
)

type stubSigner struct{}

func (stubSigner) CreateSignedUploadUrl(bucketID, filePath string) (storage_go.SignedUploadUrlResponse, error) {
	return storage_go.SignedUploadUrlResponse{Url: "https://storage.test/sign/" + filePath}, nil
}

func (stubSigner) CreateSignedUrl(bucketID, filePath string, expiresIn int) (storage_go.SignedUrlResponse, error) {
	return storage_go.SignedUrlResponse{SignedURL: "https://storage.test/view/" + filePath}, nil
}

func (stubSigner) GetPublicUrl(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse {
	return storage_go.SignedUrlResponse{SignedURL: "https://storage.test/public/" + filePath}
}

type sentInvite struct {
	To          string
	CreatorName string
	Link        string
}

type recordingMailer struct {
	mu      sync.Mutex
	invites []sentInvite
}

func (m *recordingMailer) SendEditorInvite(toEmail, creatorName, inviteLink string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites = append(m.invites, sentInvite{To: toEmail, CreatorName: creatorName, Link: inviteLink})
	return nil
}

func (m *recordingMailer) sent() []sentInvite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentInvite(nil), m.invites...)
}

// testEnv is a full handler stack wired against a fake PostgREST backend.
// Tests register routes on mux with Go 1.22 method+path patterns, e.g.
// mux.HandleFunc("GET /rest/v1/users", ...).
type testEnv struct {
	mux  *http.ServeMux
	h    *ApplicationHandler
	app  *fiber.App
	mail *recordingMailer
	hub  *realtime.Hub

	notifMu       sync.Mutex
	notifications []map[string]interface{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if config.Log == nil {
		config.InitLogger("error")
	}

	env := &testEnv{mux: http.NewServeMux(), mail: &recordingMailer{}, hub: realtime.NewHub()}

	// Notification fan-out is captured for every test by default.
	env.mux.HandleFunc("POST /rest/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		var row map[string]interface{}
		json.NewDecoder(r.Body).Decode(&row)
		env.notifMu.Lock()
		env.notifications = append(env.notifications, row)
		env.notifMu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "[]")
	})

	srv := httptest.NewServer(env.mux)
	t.Cleanup(srv.Close)

	db, err := supa.NewClient(srv.URL, "test-anon-key", nil)
	require.NoError(t, err)
	service := postgrest.NewClient(srv.URL+"/rest/v1", "", map[string]string{"apikey": "test-service-key"})

	cipher, err := youtube.NewTokenCipher(testEncKey, testEncIV)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dispatcher := worker.NewDispatcher(1, 4, logger)
	dispatcher.Run()
	t.Cleanup(dispatcher.Stop)

	cfg := &config.AppConfig{
		SupabaseURL:        srv.URL,
		SupabaseServiceKey: "test-service-key",
		SupabaseJWTSecret:  testSessionSecret,
		StorageBucket:      "edio-uploads",
		AppBaseURL:         "https://app.edio.test",
	}

	env.h = NewApplicationHandler(cfg, logger, db, service,
		storage.NewService(cfg.StorageBucket, stubSigner{}),
		youtube.NewClient("client-id", "client-secret", logger),
		cipher, env.hub, env.mail, dispatcher)
	env.app = newTestRouter(env.h, cfg.SupabaseJWTSecret)
	return env
}

// newTestRouter registers the authenticated API surface the way the server
// binary does.
func newTestRouter(h *ApplicationHandler, jwtSecret string) *fiber.App {
	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	apiV1.Use(middleware.AuthRequired(jwtSecret))

	apiV1.Post("/auth/select-role", h.SelectRole)
	apiV1.Get("/me", h.GetMe)
	apiV1.Patch("/me", h.UpdateMe)

	apiV1.Post("/projects", h.CreateProject)
	apiV1.Get("/projects", h.ListProjects)
	apiV1.Get("/projects/:id", h.GetProject)
	apiV1.Patch("/projects/:id", h.UpdateProject)
	apiV1.Post("/projects/:id/complete", h.CompleteProject)
	apiV1.Post("/projects/:id/final-version", h.SetFinalVersion)

	apiV1.Post("/projects/:id/versions", h.SubmitVersion)
	apiV1.Get("/projects/:id/versions", h.ListVersions)
	apiV1.Delete("/projects/:id/versions/:versionId", h.DeleteVersion)

	apiV1.Get("/projects/:id/messages", h.ListMessages)
	apiV1.Post("/projects/:id/messages", h.SendMessage)
	apiV1.Post("/projects/:id/feedback", h.SubmitFeedback)

	apiV1.Post("/editors/invite", h.InviteEditor)
	apiV1.Post("/editors/invite-email", h.InviteEditorByEmail)
	apiV1.Get("/editors", h.ListEditors)
	apiV1.Get("/invitations", h.ListInvitations)
	apiV1.Post("/invitations/:id/:action", h.RespondInvitation)
	apiV1.Post("/editor-invites/:id/accept", h.AcceptEmailInvite)

	apiV1.Post("/uploads/sign", h.SignUpload)
	apiV1.Post("/uploads", h.RecordUpload)
	apiV1.Get("/projects/:id/uploads", h.ListUploads)

	apiV1.Post("/channels/connect", h.ConnectChannel)
	apiV1.Get("/channels", h.ListChannels)
	apiV1.Delete("/channels/:id", h.DeleteChannel)
	apiV1.Post("/projects/:id/publish", h.PublishProject)
	apiV1.Get("/projects/:id/publish-status", h.PublishStatus)

	apiV1.Get("/notifications", h.ListNotifications)
	apiV1.Get("/notifications/unread-count", h.UnreadCount)
	apiV1.Post("/notifications/:id/read", h.MarkNotificationRead)

	return app
}

// signSession mints a session token the auth middleware accepts.
func signSession(t *testing.T, userID uuid.UUID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSessionSecret))
	require.NoError(t, err)
	return signed
}

type apiResponse struct {
	StatusCode int
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// do runs one request through the fiber app and decodes the response
// envelope.
func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := &apiResponse{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out), "response was not the JSON envelope: %s", raw)
	return out
}

// decodeData unmarshals the envelope's data field.
func decodeData(t *testing.T, resp *apiResponse, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func (env *testEnv) sentNotifications() []map[string]interface{} {
	env.notifMu.Lock()
	defer env.notifMu.Unlock()
	return append([]map[string]interface{}(nil), env.notifications...)
}

// decodeBody reads a captured request body into out.
func decodeBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

// respondRaisedError writes the body PostgREST emits when a database
// function raises an exception.
func respondRaisedError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    "P0001",
		"message": message,
		"details": nil,
		"hint":    nil,
	})
}

// respondRows writes rows as a PostgREST result set.
func respondRows(w http.ResponseWriter, rows ...interface{}) {
	if rows == nil {
		rows = []interface{}{}
	}
	json.NewEncoder(w).Encode(rows)
}

// eqParam extracts the value of an eq.<value> filter from a PostgREST query.
func eqParam(r *http.Request, column string) string {
	v := r.URL.Query().Get(column)
	if len(v) > 3 && v[:3] == "eq." {
		return v[3:]
	}
	return ""
}

func userRow(id uuid.UUID, email, name, role string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"id": id, "email": email, "name": name, "role": role,
		"created_at": now, "updated_at": now,
	}
}

func projectRow(id, ownerID uuid.UUID, status string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"id": id, "owner_id": ownerID, "title": "Launch Video", "status": status,
		"created_at": now, "updated_at": now,
	}
}

func relationshipRow(id, creatorID, editorID uuid.UUID, status string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"id": id, "creator_id": creatorID, "editor_id": editorID, "status": status,
		"created_at": now, "updated_at": now,
	}
}

func versionRow(id, projectID, uploaderID uuid.UUID, number int) map[string]interface{} {
	return map[string]interface{}{
		"id": id, "project_id": projectID, "uploader_id": uploaderID,
		"version_number": number, "file_url": "https://storage.test/public/v.mp4",
		"notes": "cut", "created_at": time.Now(),
	}
}

// usersEndpoint serves GET /rest/v1/users from a fixed id-to-row table.
func usersEndpoint(rows map[string]map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if row, ok := rows[eqParam(r, "id")]; ok {
			respondRows(w, row)
			return
		}
		respondRows(w)
	}
}
