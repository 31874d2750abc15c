package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"edio/config"
	"edio/internal/mailer"
	"edio/internal/realtime"
	"edio/internal/storage"
	"edio/internal/worker"
	"edio/internal/youtube"
	"edio/models"
)

var validate = validator.New()

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Logger     *logrus.Logger
	DB         *supa.Client       // general table access
	Service    *postgrest.Client  // service-role: cross-user deletes, notification fan-out
	Storage    *storage.Service
	Platform   *youtube.Client
	Cipher     *youtube.TokenCipher
	Hub        *realtime.Hub
	Mail       mailer.Mailer
	Dispatcher *worker.Dispatcher
	Cfg        *config.AppConfig

	rpcHTTP *http.Client
}

// NewApplicationHandler creates an ApplicationHandler with the given
// dependencies.
func NewApplicationHandler(cfg *config.AppConfig, logger *logrus.Logger, db *supa.Client, service *postgrest.Client,
	store *storage.Service, platform *youtube.Client, cipher *youtube.TokenCipher, hub *realtime.Hub,
	mail mailer.Mailer, dispatcher *worker.Dispatcher) *ApplicationHandler {
	return &ApplicationHandler{
		Logger:     logger,
		DB:         db,
		Service:    service,
		Storage:    store,
		Platform:   platform,
		Cipher:     cipher,
		Hub:        hub,
		Mail:       mail,
		Dispatcher: dispatcher,
		Cfg:        cfg,
		rpcHTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// fetchUser loads a profile row. Returns nil (no error) when the profile does
// not exist yet, which is a normal state before role selection.
func (h *ApplicationHandler) fetchUser(userID uuid.UUID) (*models.User, error) {
	var users []models.User
	body, _, err := h.DB.From("users").Select("*", "", false).Eq("id", userID.String()).Execute()
	if err != nil {
		return nil, fmt.Errorf("could not fetch user: %w", err)
	}
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("could not decode user: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// fetchProject loads a project row or returns (nil, nil) when absent.
func (h *ApplicationHandler) fetchProject(projectID uuid.UUID) (*models.Project, error) {
	var projects []models.Project
	body, _, err := h.DB.From("projects").Select("*", "", false).Eq("id", projectID.String()).Execute()
	if err != nil {
		return nil, fmt.Errorf("could not fetch project: %w", err)
	}
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("could not decode project: %w", err)
	}
	if len(projects) == 0 {
		return nil, nil
	}
	return &projects[0], nil
}

// isAssignedEditor reports membership in the project's assignment set. The
// legacy single-editor reference counts as assigned.
func (h *ApplicationHandler) isAssignedEditor(project *models.Project, userID uuid.UUID) (bool, error) {
	if project.EditorID != nil && *project.EditorID == userID {
		return true, nil
	}

	var rows []models.ProjectEditor
	body, _, err := h.DB.From("project_editors").Select("*", "", false).
		Eq("project_id", project.ID.String()).
		Eq("editor_id", userID.String()).
		Execute()
	if err != nil {
		return false, fmt.Errorf("could not check editor assignment: %w", err)
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, fmt.Errorf("could not decode editor assignment: %w", err)
	}
	return len(rows) > 0, nil
}

// canAccessProject is the authorization check every mutating project
// operation re-derives per request: owner or assigned editor.
func (h *ApplicationHandler) canAccessProject(project *models.Project, userID uuid.UUID) (bool, error) {
	if project.OwnerID == userID {
		return true, nil
	}
	return h.isAssignedEditor(project, userID)
}

// notify inserts an append-only notification event with the service client.
// Failures are logged, never surfaced: a lost notification must not fail the
// business operation that triggered it.
func (h *ApplicationHandler) notify(userID uuid.UUID, kind, message string, metadata map[string]interface{}) {
	row := map[string]interface{}{
		"user_id": userID.String(),
		"type":    kind,
		"message": message,
		"read":    false,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			h.Logger.WithField("error", err.Error()).Warn("Could not marshal notification metadata")
		} else {
			row["metadata"] = json.RawMessage(raw)
		}
	}

	if _, _, err := h.Service.From("notifications").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		h.Logger.WithFields(logrus.Fields{"user_id": userID, "type": kind, "error": err.Error()}).
			Warn("Could not insert notification")
	}
}

// rpc invokes a PostgREST function with the service role and decodes the
// jsonb result into out. Compound business writes go through these so each
// runs in one database transaction. The request is issued directly rather
// than through the shared postgrest client: a raised database error must
// come back as a Go error, and the shared client reports call failures via
// mutable state that is unsafe across request goroutines.
func (h *ApplicationHandler) rpc(name string, params map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("could not encode rpc %s params: %w", name, err)
	}

	url := strings.TrimRight(h.Cfg.SupabaseURL, "/") + "/rest/v1/rpc/" + name
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("could not build rpc %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", h.Cfg.SupabaseServiceKey)
	req.Header.Set("Authorization", "Bearer "+h.Cfg.SupabaseServiceKey)

	resp, err := h.rpcHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read rpc %s response: %w", name, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		// PostgREST reports raised exceptions as {"code","message",...}.
		var dbErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &dbErr) == nil && dbErr.Message != "" {
			return fmt.Errorf("rpc %s failed: %s (%s)", name, dbErr.Message, dbErr.Code)
		}
		return fmt.Errorf("rpc %s failed with status %d", name, resp.StatusCode)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not decode rpc %s result: %w", name, err)
	}
	return nil
}
