package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// CreateProjectRequest defines the expected request body for creating a
// project. The initial file becomes both the project's first upload record
// and its implicit version 1.
type CreateProjectRequest struct {
	Title            string  `json:"title" validate:"required"`
	VideoTitle       *string `json:"video_title,omitempty"`
	VideoDescription *string `json:"video_description,omitempty"`
	FileURL          string  `json:"file_url" validate:"required"`
	FileName         string  `json:"file_name" validate:"required"`
	FileSize         *int64  `json:"file_size,omitempty"`
}

// CreateProject godoc
// @Summary Create a new project
// @Description Creates a project in pending status together with its initial upload record and version 1, in one transaction.
// @Tags projects
// @Accept  json
// @Produce  json
// @Param   project body CreateProjectRequest true "Project to create"
// @Success 201 {object} map[string]interface{} "Project created"
// @Failure 400 {object} map[string]interface{} "Invalid input"
// @Failure 403 {object} map[string]interface{} "Caller is not a creator"
// @Router /projects [post]
func (h *ApplicationHandler) CreateProject(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(CreateProjectRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}

	// Role is re-read from the profile table, never taken from the client.
	user, err := h.fetchUser(authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify caller")
	}
	if user == nil || user.Role != models.RoleCreator {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only creators can create projects")
	}

	params := map[string]interface{}{
		"p_owner_id":          authUser.ID.String(),
		"p_title":             payload.Title,
		"p_video_title":       payload.VideoTitle,
		"p_video_description": payload.VideoDescription,
		"p_file_url":          payload.FileURL,
		"p_file_name":         payload.FileName,
		"p_file_size":         payload.FileSize,
	}

	var project models.Project
	if err := h.rpc("create_project", params, &project); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Project creation failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create project")
	}

	h.Logger.WithFields(map[string]interface{}{"project_id": project.ID, "owner_id": authUser.ID}).Info("Project created")
	return utils.RespondWithJSON(c, fiber.StatusCreated, project)
}

// ListProjects returns the caller's projects: owned ones plus those they are
// assigned to as editor.
func (h *ApplicationHandler) ListProjects(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	var owned []models.Project
	body, _, err := h.DB.From("projects").Select("*", "", false).Eq("owner_id", authUser.ID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list owned projects")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve projects")
	}
	if err := json.Unmarshal(body, &owned); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode projects")
	}

	var assignments []models.ProjectEditor
	body, _, err = h.DB.From("project_editors").Select("*", "", false).Eq("editor_id", authUser.ID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list editor assignments")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve projects")
	}
	if err := json.Unmarshal(body, &assignments); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode assignments")
	}

	projects := owned
	if len(assignments) > 0 {
		ids := make([]string, 0, len(assignments))
		for _, a := range assignments {
			ids = append(ids, a.ProjectID.String())
		}

		var assigned []models.Project
		body, _, err = h.DB.From("projects").Select("*", "", false).In("id", ids).Execute()
		if err != nil {
			h.Logger.WithField("error", err.Error()).Error("Could not list assigned projects")
			return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve projects")
		}
		if err := json.Unmarshal(body, &assigned); err != nil {
			return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode projects")
		}
		projects = append(projects, assigned...)
	}

	if projects == nil {
		projects = []models.Project{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, projects)
}

// GetProject returns one project. Owner or assigned editor only.
func (h *ApplicationHandler) GetProject(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}

	allowed, err := h.canAccessProject(project, authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify access")
	}
	if !allowed {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Not a member of this project")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, project)
}

// UpdateProjectRequest carries the editable metadata fields.
type UpdateProjectRequest struct {
	Title            *string `json:"title,omitempty"`
	VideoTitle       *string `json:"video_title,omitempty"`
	VideoDescription *string `json:"video_description,omitempty"`
	ChannelID        *string `json:"channel_id,omitempty"`
}

// UpdateProject partially updates project metadata. Owner or assigned editor.
func (h *ApplicationHandler) UpdateProject(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}

	allowed, err := h.canAccessProject(project, authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify access")
	}
	if !allowed {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Not a member of this project")
	}

	payload := new(UpdateProjectRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	update := map[string]interface{}{"updated_at": time.Now()}
	if payload.Title != nil {
		if strings.TrimSpace(*payload.Title) == "" {
			return utils.RespondWithError(c, fiber.StatusBadRequest, "Title cannot be empty")
		}
		update["title"] = *payload.Title
	}
	if payload.VideoTitle != nil {
		update["video_title"] = *payload.VideoTitle
	}
	if payload.VideoDescription != nil {
		update["video_description"] = *payload.VideoDescription
	}
	if payload.ChannelID != nil {
		// Linking a channel is owner-only.
		if project.OwnerID != authUser.ID {
			return utils.RespondWithError(c, fiber.StatusForbidden, "Only the owner can link a channel")
		}
		if *payload.ChannelID == "" {
			update["channel_id"] = nil
		} else {
			channelID, err := uuid.Parse(*payload.ChannelID)
			if err != nil {
				return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid channel ID format")
			}
			update["channel_id"] = channelID.String()
		}
	}

	var updated []models.Project
	body, _, err := h.DB.From("projects").Update(update, "representation", "").Eq("id", projectID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not update project")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update project")
	}
	if err := json.Unmarshal(body, &updated); err != nil || len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm project update")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}

// CompleteProject marks a project approved. Owner only, unconditional: the
// owner can approve from any state.
func (h *ApplicationHandler) CompleteProject(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	if project.OwnerID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only the owner can approve a project")
	}

	update := map[string]interface{}{
		"status":     models.ProjectStatusApproved,
		"updated_at": time.Now(),
	}
	var updated []models.Project
	body, _, err := h.DB.From("projects").Update(update, "representation", "").Eq("id", projectID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not approve project")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not approve project")
	}
	if err := json.Unmarshal(body, &updated); err != nil || len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm approval")
	}

	h.notifyProjectEditors(project, models.NotificationProjectApproved,
		fmt.Sprintf("Project %q was approved", project.Title))
	h.Logger.WithField("project_id", projectID).Info("Project approved")
	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}

// SetFinalVersionRequest selects the version to publish.
type SetFinalVersionRequest struct {
	VersionNumber int `json:"version_number" validate:"required,min=1"`
}

// SetFinalVersion writes the advisory final_version_number onto the project.
// Owner only; the version must exist.
func (h *ApplicationHandler) SetFinalVersion(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	payload := new(SetFinalVersionRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	if project.OwnerID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only the owner can set the final version")
	}

	var versions []models.VideoVersion
	body, _, err := h.DB.From("video_versions").Select("*", "", false).
		Eq("project_id", projectID.String()).
		Eq("version_number", fmt.Sprintf("%d", payload.VersionNumber)).
		Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not look up version")
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode version")
	}
	if len(versions) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound,
			fmt.Sprintf("Version %d not found for this project", payload.VersionNumber))
	}

	update := map[string]interface{}{
		"final_version_number": payload.VersionNumber,
		"updated_at":           time.Now(),
	}
	var updated []models.Project
	body, _, err = h.DB.From("projects").Update(update, "representation", "").Eq("id", projectID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not set final version")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not set final version")
	}
	if err := json.Unmarshal(body, &updated); err != nil || len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm final version")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}

// notifyProjectEditors fans a notification out to every assigned editor plus
// the legacy single-editor reference. Best-effort.
func (h *ApplicationHandler) notifyProjectEditors(project *models.Project, kind, message string) {
	metadata := map[string]interface{}{"project_id": project.ID.String()}

	seen := map[uuid.UUID]bool{}
	if project.EditorID != nil {
		seen[*project.EditorID] = true
		h.notify(*project.EditorID, kind, message, metadata)
	}

	var assignments []models.ProjectEditor
	body, _, err := h.DB.From("project_editors").Select("*", "", false).Eq("project_id", project.ID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Warn("Could not fan out editor notifications")
		return
	}
	if err := json.Unmarshal(body, &assignments); err != nil {
		return
	}
	for _, a := range assignments {
		if seen[a.EditorID] {
			continue
		}
		seen[a.EditorID] = true
		h.notify(a.EditorID, kind, message, metadata)
	}
}
