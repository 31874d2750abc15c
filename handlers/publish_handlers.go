package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"edio/internal/jobs"
	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// PublishRequest optionally names the version to publish; when omitted the
// project's final version is used.
type PublishRequest struct {
	VersionNumber int `json:"version_number,omitempty"`
}

// PublishProject godoc
// @Summary Publish a project's selected version to its linked channel
// @Description Marks the project's publish status processing and enqueues the publish job. Poll publish-status for the outcome.
// @Tags publishing
// @Accept  json
// @Produce  json
// @Param   id path string true "Project ID"
// @Success 202 {object} map[string]interface{} "Publish accepted"
// @Router /projects/{id}/publish [post]
func (h *ApplicationHandler) PublishProject(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	payload := new(PublishRequest)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		}
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	if project.OwnerID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only the owner can publish")
	}
	if project.ChannelID == nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Project has no linked channel")
	}
	if payload.VersionNumber == 0 && project.FinalVersionNumber == nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Select a version or set a final version first")
	}
	if project.PublishStatus != nil && *project.PublishStatus == models.PublishStatusProcessing {
		return utils.RespondWithError(c, fiber.StatusConflict, "A publish is already in progress")
	}

	update := map[string]interface{}{
		"publish_status": models.PublishStatusProcessing,
		"publish_error":  nil,
		"updated_at":     time.Now(),
	}
	if _, _, err := h.DB.From("projects").Update(update, "", "").Eq("id", projectID.String()).Execute(); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not mark publish processing")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not start publish")
	}

	job := &jobs.PublishVideoJob{
		JobID:         uuid.NewString(),
		ProjectID:     projectID,
		VersionNumber: payload.VersionNumber,
		DB:            h.Service,
		Platform:      h.Platform,
		Cipher:        h.Cipher,
		Storage:       h.Storage,
		Downloader:    &http.Client{Timeout: 15 * time.Minute},
		Logger:        h.Logger,
	}
	if !h.Dispatcher.Submit(job) {
		// Roll the marker back so a later attempt is not blocked.
		rollback := map[string]interface{}{"publish_status": nil, "updated_at": time.Now()}
		if _, _, err := h.DB.From("projects").Update(rollback, "", "").Eq("id", projectID.String()).Execute(); err != nil {
			h.Logger.WithField("error", err.Error()).Warn("Could not roll back publish marker")
		}
		return utils.RespondWithError(c, fiber.StatusServiceUnavailable, "Publisher is busy, try again shortly")
	}

	h.Logger.WithFields(map[string]interface{}{"project_id": projectID, "job_id": job.JobID}).Info("Publish enqueued")
	return utils.RespondWithJSON(c, fiber.StatusAccepted, fiber.Map{
		"job_id":         job.JobID,
		"publish_status": models.PublishStatusProcessing,
	})
}

// PublishStatus polls the persisted publishing state of a project.
func (h *ApplicationHandler) PublishStatus(c *fiber.Ctx) error {
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

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"publish_status":     project.PublishStatus,
		"published_video_id": project.PublishedVideoID,
		"publish_error":      project.PublishError,
	})
}
