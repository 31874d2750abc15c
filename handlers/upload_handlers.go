package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"edio/internal/storage"
	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// SignUploadRequest is the body for presigned upload issuance.
type SignUploadRequest struct {
	FileName     string `json:"file_name" validate:"required"`
	FileType     string `json:"file_type" validate:"required"`
	FileSize     int64  `json:"file_size" validate:"required"`
	ProjectID    *string `json:"project_id,omitempty"`
	RequiredRole *string `json:"required_role,omitempty"`
}

// SignUpload godoc
// @Summary Issue a presigned upload URL
// @Description Validates the declared size against the file type's ceiling and returns a time-limited PUT URL plus the eventual public object path. No metadata row is written here.
// @Tags uploads
// @Accept  json
// @Produce  json
// @Param   body body SignUploadRequest true "File to presign"
// @Success 200 {object} map[string]interface{} "Signed URL issued"
// @Failure 400 {object} map[string]interface{} "Unknown type or size over ceiling"
// @Router /uploads/sign [post]
func (h *ApplicationHandler) SignUpload(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(SignUploadRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}

	if payload.RequiredRole != nil {
		user, err := h.fetchUser(authUser.ID)
		if err != nil {
			return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify caller")
		}
		if user == nil || user.Role != *payload.RequiredRole {
			return utils.RespondWithError(c, fiber.StatusForbidden,
				fmt.Sprintf("This upload requires the %s role", *payload.RequiredRole))
		}
	}

	projectIDStr := ""
	if payload.ProjectID != nil && *payload.ProjectID != "" {
		projectID, err := uuid.Parse(*payload.ProjectID)
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
		projectIDStr = projectID.String()
	}

	result, err := h.Storage.SignUpload(authUser.Email, projectIDStr, payload.FileType, payload.FileName, payload.FileSize)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownFileType) || errors.Is(err, storage.ErrFileTooLarge) {
			return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
		}
		h.Logger.WithField("error", err.Error()).Error("Presign issuance failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not issue upload URL")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, result)
}

// RecordUploadRequest is written by the client after its presigned PUT
// succeeded.
type RecordUploadRequest struct {
	ProjectID *string `json:"project_id,omitempty"`
	FileType  string  `json:"file_type" validate:"required"`
	FileName  string  `json:"file_name" validate:"required"`
	FileSize  *int64  `json:"file_size,omitempty"`
	FileURL   string  `json:"file_url" validate:"required"`
}

// RecordUpload persists the metadata row for a completed upload.
func (h *ApplicationHandler) RecordUpload(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(RecordUploadRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}
	if _, err := storage.SizeCeiling(payload.FileType); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
	}

	row := map[string]interface{}{
		"uploader_id": authUser.ID.String(),
		"file_type":   payload.FileType,
		"file_name":   payload.FileName,
		"file_url":    payload.FileURL,
		"created_at":  time.Now(),
	}
	if payload.FileSize != nil {
		row["file_size"] = *payload.FileSize
	}
	if payload.ProjectID != nil && *payload.ProjectID != "" {
		projectID, err := uuid.Parse(*payload.ProjectID)
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
		row["project_id"] = projectID.String()
	}

	var created []models.Upload
	body, _, err := h.DB.From("uploads").Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not record upload")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not record upload")
	}
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm upload record")
	}

	return utils.RespondWithJSON(c, fiber.StatusCreated, created[0])
}

// ListUploads returns a project's upload records, newest first.
func (h *ApplicationHandler) ListUploads(c *fiber.Ctx) error {
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

	var uploads []models.Upload
	body, _, err := h.DB.From("uploads").Select("*", "", false).
		Eq("project_id", projectID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list uploads")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve uploads")
	}
	if err := json.Unmarshal(body, &uploads); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode uploads")
	}
	if uploads == nil {
		uploads = []models.Upload{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, uploads)
}
