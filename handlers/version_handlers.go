package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"edio/internal/realtime"
	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// SubmitVersionRequest is the body for submitting a new cut. Notes are
// required free text describing the changes.
type SubmitVersionRequest struct {
	FileURL  string `json:"file_url" validate:"required"`
	FileName string `json:"file_name"`
	FileSize *int64 `json:"file_size,omitempty"`
	Notes    string `json:"notes" validate:"required"`
}

type submitVersionResult struct {
	Version       models.VideoVersion `json:"version"`
	ProjectStatus string              `json:"project_status"`
}

// SubmitVersion godoc
// @Summary Submit a new video version
// @Description Allocates the next gapless version number and, when the uploader's profile role is editor, flips the project to in_review. Both happen in one database transaction.
// @Tags versions
// @Accept  json
// @Produce  json
// @Param   id path string true "Project ID"
// @Param   body body SubmitVersionRequest true "Version to submit"
// @Success 201 {object} map[string]interface{} "Version created"
// @Router /projects/{id}/versions [post]
func (h *ApplicationHandler) SubmitVersion(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	payload := new(SubmitVersionRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}
	if strings.TrimSpace(payload.Notes) == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Notes are required")
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

	// The status flip depends on the uploader's stored role, re-checked by
	// the database function at submit time.
	params := map[string]interface{}{
		"p_project_id":  projectID.String(),
		"p_uploader_id": authUser.ID.String(),
		"p_file_url":    payload.FileURL,
		"p_file_name":   payload.FileName,
		"p_file_size":   payload.FileSize,
		"p_notes":       payload.Notes,
	}

	var result submitVersionResult
	if err := h.rpc("submit_version", params, &result); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Version submission failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not submit version")
	}

	if result.ProjectStatus == models.ProjectStatusInReview && project.OwnerID != authUser.ID {
		h.notify(project.OwnerID, models.NotificationVersionUploaded,
			fmt.Sprintf("Version %d was uploaded to %q", result.Version.VersionNumber, project.Title),
			map[string]interface{}{"project_id": projectID.String(), "version_number": result.Version.VersionNumber})
	}
	h.Hub.Broadcast(projectID.String(), realtime.Event{
		Kind: realtime.EventStatusChanged,
		Payload: fiber.Map{
			"project_id":     projectID.String(),
			"status":         result.ProjectStatus,
			"version_number": result.Version.VersionNumber,
		},
	})

	h.Logger.WithFields(map[string]interface{}{
		"project_id":     projectID,
		"version_number": result.Version.VersionNumber,
		"status":         result.ProjectStatus,
	}).Info("Version submitted")
	return utils.RespondWithJSON(c, fiber.StatusCreated, result)
}

// ListVersions returns a project's versions, newest first, with the uploader
// relation embedded.
func (h *ApplicationHandler) ListVersions(c *fiber.Ctx) error {
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

	var versions []models.VideoVersion
	body, _, err := h.DB.From("video_versions").
		Select("*, uploader:users!uploader_id(id,name,email,role)", "", false).
		Eq("project_id", projectID.String()).
		Order("version_number", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list versions")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve versions")
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode versions")
	}
	if versions == nil {
		versions = []models.VideoVersion{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, versions)
}

// DeleteVersion removes a version. The owner may delete any version; anyone
// else only a version they uploaded themselves. After the check passes the
// delete runs on the service-role client, since row-level security would
// otherwise block the owner removing another user's upload.
func (h *ApplicationHandler) DeleteVersion(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}
	versionID, err := uuid.Parse(c.Params("versionId"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid version ID format")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}

	var versions []models.VideoVersion
	body, _, err := h.DB.From("video_versions").Select("*", "", false).
		Eq("id", versionID.String()).
		Eq("project_id", projectID.String()).
		Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve version")
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode version")
	}
	if len(versions) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Version %s not found", versionID))
	}
	version := versions[0]

	isOwner := project.OwnerID == authUser.ID
	if !isOwner && version.UploaderID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "You can only delete versions you uploaded")
	}

	if _, _, err := h.Service.From("video_versions").Delete("", "").Eq("id", versionID.String()).Execute(); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not delete version")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not delete version")
	}

	// Clear a dangling final-version pointer.
	if project.FinalVersionNumber != nil && *project.FinalVersionNumber == version.VersionNumber {
		update := map[string]interface{}{"final_version_number": nil, "updated_at": time.Now()}
		if _, _, err := h.Service.From("projects").Update(update, "", "").Eq("id", projectID.String()).Execute(); err != nil {
			h.Logger.WithField("error", err.Error()).Warn("Could not clear final version pointer")
		}
	}

	h.Logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"version_id": versionID,
		"deleted_by": authUser.ID,
	}).Info("Version deleted")
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"deleted": versionID.String()})
}
