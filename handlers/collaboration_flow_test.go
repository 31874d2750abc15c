package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edio/models"
)

// TestCreatorEditorCollaborationLifecycle drives one project through the whole
// collaboration: both accounts pick a role, the creator starts a project and
// invites the editor, the editor accepts and submits a cut, the creator asks
// for changes, the editor submits again, and the creator picks the final cut
// and approves. The fake backend keeps the state the database functions would.
func TestCreatorEditorCollaborationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	editorID := uuid.New()
	projectID := uuid.New()
	relID := uuid.New()
	creatorToken := signSession(t, creatorID, "jane@example.com")
	editorToken := signSession(t, editorID, "ed@example.com")

	var (
		profiles     = map[string]map[string]interface{}{}
		project      map[string]interface{}
		relationship map[string]interface{}
		assignments  []interface{}
		versions     []interface{}
		lastFeedback map[string]interface{}
		nextVersion  int
	)

	env.mux.HandleFunc("GET /rest/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if row, ok := profiles[eqParam(r, "id")]; ok {
			respondRows(w, row)
			return
		}
		respondRows(w)
	})
	env.mux.HandleFunc("POST /rest/v1/users", func(w http.ResponseWriter, r *http.Request) {
		var row map[string]interface{}
		decodeBody(t, r, &row)
		profiles[row["id"].(string)] = row
		respondRows(w, row)
	})

	env.mux.HandleFunc("POST /rest/v1/rpc/create_project", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		decodeBody(t, r, &params)
		project = projectRow(projectID, creatorID, models.ProjectStatusPending)
		// The transaction records the raw upload as version 1.
		versions = append(versions, versionRow(uuid.New(), projectID, creatorID, 1))
		nextVersion = 2
		json.NewEncoder(w).Encode(project)
	})
	env.mux.HandleFunc("GET /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		if project == nil {
			respondRows(w)
			return
		}
		respondRows(w, project)
	})
	env.mux.HandleFunc("PATCH /rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		var update map[string]interface{}
		decodeBody(t, r, &update)
		for k, v := range update {
			project[k] = v
		}
		respondRows(w, project)
	})

	env.mux.HandleFunc("GET /rest/v1/youtuber_editors", func(w http.ResponseWriter, r *http.Request) {
		if relationship == nil {
			respondRows(w)
			return
		}
		respondRows(w, relationship)
	})
	env.mux.HandleFunc("POST /rest/v1/youtuber_editors", func(w http.ResponseWriter, r *http.Request) {
		relationship = relationshipRow(relID, creatorID, editorID, models.RelationshipPending)
		respondRows(w, relationship)
	})
	env.mux.HandleFunc("PATCH /rest/v1/youtuber_editors", func(w http.ResponseWriter, r *http.Request) {
		relationship["status"] = models.RelationshipActive
		// Activation puts the editor on the creator's open projects.
		assignments = append(assignments, map[string]interface{}{
			"id": uuid.New(), "project_id": projectID, "editor_id": editorID,
			"created_at": time.Now(),
		})
		respondRows(w, relationship)
	})
	env.mux.HandleFunc("GET /rest/v1/project_editors", func(w http.ResponseWriter, r *http.Request) {
		respondRows(w, assignments...)
	})

	env.mux.HandleFunc("POST /rest/v1/rpc/submit_version", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		decodeBody(t, r, &params)
		version := versionRow(uuid.New(), projectID, uuid.MustParse(params["p_uploader_id"].(string)), nextVersion)
		nextVersion++
		versions = append(versions, version)
		if params["p_uploader_id"] == editorID.String() {
			project["status"] = models.ProjectStatusInReview
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"version":        version,
			"project_status": project["status"],
		})
	})
	env.mux.HandleFunc("GET /rest/v1/video_versions", func(w http.ResponseWriter, r *http.Request) {
		if want := eqParam(r, "version_number"); want != "" {
			for _, v := range versions {
				row := v.(map[string]interface{})
				if jsonNumber(row["version_number"]) == want {
					respondRows(w, row)
					return
				}
			}
			respondRows(w)
			return
		}
		respondRows(w, versions...)
	})

	env.mux.HandleFunc("POST /rest/v1/rpc/submit_feedback", func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		decodeBody(t, r, &params)
		project["status"] = models.ProjectStatusNeedsChanges
		lastFeedback = messageRow(uuid.New(), projectID, creatorID, params["p_content"].(string), models.MessageTypeFeedback, nil)
		json.NewEncoder(w).Encode(lastFeedback)
	})
	env.mux.HandleFunc("GET /rest/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		row := map[string]interface{}{}
		for k, v := range lastFeedback {
			row[k] = v
		}
		row["sender"] = profiles[creatorID.String()]
		respondRows(w, row)
	})

	// Both accounts pick their role.
	resp := env.do(t, http.MethodPost, "/api/v1/auth/select-role", creatorToken,
		map[string]string{"role": models.RoleCreator, "name": "Jane"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/v1/auth/select-role", editorToken,
		map[string]string{"role": models.RoleEditor, "name": "Ed"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The creator starts a project from a raw upload.
	resp = env.do(t, http.MethodPost, "/api/v1/projects", creatorToken, map[string]interface{}{
		"title":     "Launch Video",
		"file_url":  "https://storage.test/public/raw.mp4",
		"file_name": "raw.mp4",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Project
	decodeData(t, resp, &created)
	require.Equal(t, models.ProjectStatusPending, created.Status)

	// Invite the editor; the editor accepts.
	resp = env.do(t, http.MethodPost, "/api/v1/editors/invite", creatorToken,
		map[string]string{"editor_id": editorID.String()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/invitations/"+relID.String()+"/accept", editorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rel models.EditorRelationship
	decodeData(t, resp, &rel)
	require.Equal(t, models.RelationshipActive, rel.Status)

	// The editor submits a cut; the project goes into review.
	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/versions", editorToken,
		map[string]interface{}{"file_url": "https://storage.test/public/v2.mp4", "notes": "first full cut"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var submitted struct {
		Version       models.VideoVersion `json:"version"`
		ProjectStatus string              `json:"project_status"`
	}
	decodeData(t, resp, &submitted)
	assert.Equal(t, 2, submitted.Version.VersionNumber)
	assert.Equal(t, models.ProjectStatusInReview, submitted.ProjectStatus)

	// The creator asks for changes.
	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/feedback", creatorToken,
		map[string]string{"content": "tighten the intro"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/projects/"+projectID.String(), creatorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var afterFeedback models.Project
	decodeData(t, resp, &afterFeedback)
	assert.Equal(t, models.ProjectStatusNeedsChanges, afterFeedback.Status)

	// The editor reworks and resubmits; numbering stays gapless.
	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/versions", editorToken,
		map[string]interface{}{"file_url": "https://storage.test/public/v3.mp4", "notes": "intro tightened"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeData(t, resp, &submitted)
	assert.Equal(t, 3, submitted.Version.VersionNumber)

	// The creator picks the final cut and approves.
	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/final-version", creatorToken,
		map[string]int{"version_number": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID.String()+"/complete", creatorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/projects/"+projectID.String(), creatorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var final models.Project
	decodeData(t, resp, &final)
	assert.Equal(t, models.ProjectStatusApproved, final.Status)
	require.NotNil(t, final.FinalVersionNumber)
	assert.Equal(t, 3, *final.FinalVersionNumber)

	// Every hand-off along the way produced a notification: the invite, the
	// acceptance, both submitted cuts, the feedback, and the approval.
	kinds := map[string]int{}
	for _, n := range env.sentNotifications() {
		kinds[n["type"].(string)]++
	}
	assert.Equal(t, 1, kinds[models.NotificationEditorInvite])
	assert.Equal(t, 1, kinds[models.NotificationInviteAccepted])
	assert.Equal(t, 2, kinds[models.NotificationVersionUploaded])
	assert.Equal(t, 1, kinds[models.NotificationFeedbackLeft])
	assert.Equal(t, 1, kinds[models.NotificationProjectApproved])
}

// jsonNumber renders a decoded JSON number (or int) the way a query filter
// carries it.
func jsonNumber(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
