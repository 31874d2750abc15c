package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edio/models"
)

func TestCreateProjectRequiresCreatorRole(t *testing.T) {
	env := newTestEnv(t)
	editorID := uuid.New()
	token := signSession(t, editorID, "ed@example.com")

	env.mux.Handle("GET /rest/v1/users", usersEndpoint(map[string]map[string]interface{}{
		editorID.String(): userRow(editorID, "ed@example.com", "Ed", models.RoleEditor),
	}))

	resp := env.do(t, http.MethodPost, "/api/v1/projects", token, map[string]interface{}{
		"title":     "Launch Video",
		"file_url":  "https://storage.test/public/raw.mp4",
		"file_name": "raw.mp4",
	})

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Only creators can create projects", resp.Message)
}

func TestCreateProjectRunsTransactionalRPC(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	projectID := uuid.New()
	token := signSession(t, creatorID, "jane@example.com")

	env.mux.Handle("GET /rest/v1/users", usersEndpoint(map[string]map[string]interface{}{
		creatorID.String(): userRow(creatorID, "jane@example.com", "Jane", models.RoleCreator),
	}))
	env.mux.HandleFunc("POST /rest/v1/rpc/create_project", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		decodeBody(t, r, &params)
		assert.Equal(t, creatorID.String(), params["p_owner_id"])
		assert.Equal(t, "Launch Video", params["p_title"])
		assert.Equal(t, "raw.mp4", params["p_file_name"])
		json.NewEncoder(w).Encode(projectRow(projectID, creatorID, models.ProjectStatusPending))
	})

	resp := env.do(t, http.MethodPost, "/api/v1/projects", token, map[string]interface{}{
		"title":     "Launch Video",
		"file_url":  "https://storage.test/public/raw.mp4",
		"file_name": "raw.mp4",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var project models.Project
	decodeData(t, resp, &project)
	assert.Equal(t, projectID, project.ID)
	// New projects always start pending.
	assert.Equal(t, models.ProjectStatusPending, project.Status)
}

func TestCreateProjectSurfacesDatabaseFailure(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	token := signSession(t, creatorID, "jane@example.com")

	env.mux.Handle("GET /rest/v1/users", usersEndpoint(map[string]map[string]interface{}{
		creatorID.String(): userRow(creatorID, "jane@example.com", "Jane", models.RoleCreator),
	}))
	env.mux.HandleFunc("POST /rest/v1/rpc/create_project", func(w http.ResponseWriter, r *http.Request) {
		respondRaisedError(w, "owner does not exist")
	})

	resp := env.do(t, http.MethodPost, "/api/v1/projects", token, map[string]interface{}{
		"title":     "Launch Video",
		"file_url":  "https://storage.test/public/raw.mp4",
		"file_name": "raw.mp4",
	})

	// A raised exception must not decode as an empty project.
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "Could not create project", resp.Message)
}

func TestCompleteProjectOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	token := signSession(t, uuid.New(), "ed@example.com")

	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, projectRow(projectID, uuid.New(), models.ProjectStatusInReview))
	})

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/complete", token, nil)

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Only the owner can approve a project", resp.Message)
}

func TestCompleteProjectApprovesAndNotifiesEditors(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()
	editorID := uuid.New()
	projectID := uuid.New()
	token := signSession(t, ownerID, "jane@example.com")

	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		// Approval works from any state, including needs_changes.
		respondRows(w, projectRow(projectID, ownerID, models.ProjectStatusNeedsChanges))
	})
	env.mux.HandleFunc("PATCH /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		var update map[string]interface{}
		decodeBody(t, r, &update)
		assert.Equal(t, models.ProjectStatusApproved, update["status"])
		respondRows(w, projectRow(projectID, ownerID, models.ProjectStatusApproved))
	})
	env.mux.HandleFunc("GET /rest/v1/project_editors", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, map[string]interface{}{
			"id": uuid.New(), "project_id": projectID, "editor_id": editorID,
			"created_at": "2026-08-28T12:00:00Z",
		})
	})

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/complete", token, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved models.Project
	decodeData(t, resp, &approved)
	assert.Equal(t, models.ProjectStatusApproved, approved.Status)

	notifs := env.sentNotifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, editorID.String(), notifs[0]["user_id"])
	assert.Equal(t, models.NotificationProjectApproved, notifs[0]["type"])
}

func TestSetFinalVersionMustExist(t *testing.T) {
	env := newTestEnv(t)
	ownerID := uuid.New()
	projectID := uuid.New()
	token := signSession(t, ownerID, "jane@example.com")

	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, projectRow(projectID, ownerID, models.ProjectStatusInReview))
	})
	env.mux.HandleFunc("GET /rest/v1/video_versions", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w)
	})

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/final-version", token,
		map[string]int{"version_number": 7})

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Message, "Version 7 not found")
}

func TestUpdateProjectChannelLinkIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	editorID := uuid.New()
	projectID := uuid.New()
	token := signSession(t, editorID, "ed@example.com")

	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, projectRow(projectID, uuid.New(), models.ProjectStatusPending))
	})
	env.mux.HandleFunc("GET /rest/v1/project_editors", func(w http.ResponseWriter, r *http.Request) {
		// The caller is an assigned editor, so metadata edits are allowed.
		respondRows(w, map[string]interface{}{
			"id": uuid.New(), "project_id": projectID, "editor_id": editorID,
			"created_at": "2026-08-28T12:00:00Z",
		})
	})

	channelID := uuid.New().String()
	resp := env.do(t, http.MethodPatch, "/api/v1/projects/"+projectID.String(), token,
		map[string]string{"channel_id": channelID})

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Only the owner can link a channel", resp.Message)
}

func TestListProjectsMergesOwnedAndAssigned(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	ownedID := uuid.New()
	assignedID := uuid.New()
	token := signSession(t, userID, "jane@example.com")

	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		if eqParam(r, "owner_id") == userID.String() {
			respondRows(w, projectRow(ownedID, userID, models.ProjectStatusPending))
			return
		}
		// The follow-up query for assigned projects filters on id=in.(...).
		respondRows(w, projectRow(assignedID, uuid.New(), models.ProjectStatusInReview))
	})
	env.mux.HandleFunc("GET /rest/v1/project_editors", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, map[string]interface{}{
			"id": uuid.New(), "project_id": assignedID, "editor_id": userID,
			"created_at": "2026-08-28T12:00:00Z",
		})
	})

	resp := env.do(t, http.MethodGet, "/api/v1/projects", token, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var projects []models.Project
	decodeData(t, resp, &projects)
	require.Len(t, projects, 2)
	ids := []uuid.UUID{projects[0].ID, projects[1].ID}
	assert.Contains(t, ids, ownedID)
	assert.Contains(t, ids, assignedID)
}
