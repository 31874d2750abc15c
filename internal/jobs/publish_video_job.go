package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"edio/internal/storage"
	"edio/internal/youtube"
	"edio/models"
)

// PublishVideoJob streams one project's selected version (and its newest
// thumbnail, when present) to the video platform, then persists the outcome
// on the project row. Runs on the worker dispatcher; the HTTP handler only
// enqueues it.
type PublishVideoJob struct {
	JobID         string
	ProjectID     uuid.UUID
	VersionNumber int // 0 means use the project's final version number

	DB         *postgrest.Client
	Platform   *youtube.Client
	Cipher     *youtube.TokenCipher
	Storage    *storage.Service
	Downloader *http.Client
	Logger     *logrus.Logger
}

// ID returns the job's unique identifier.
func (j *PublishVideoJob) ID() string {
	return j.JobID
}

// Execute runs the publish flow. Any failure before the platform accepts the
// video marks the project's publish status failed with the platform's error
// message; there is no retry beyond the single forced token refresh.
func (j *PublishVideoJob) Execute() error {
	ctx := context.Background()

	videoID, err := j.publish(ctx)
	if err != nil {
		j.markFailed(err.Error())
		return err
	}

	update := map[string]interface{}{
		"published_video_id": videoID,
		"publish_status":     models.PublishStatusCompleted,
		"publish_error":      nil,
		"updated_at":         time.Now(),
	}
	if _, _, uerr := j.DB.From("projects").Update(update, "", "").Eq("id", j.ProjectID.String()).Execute(); uerr != nil {
		// The video is live but our row is stale; surface loudly in logs.
		j.Logger.WithFields(logrus.Fields{"project_id": j.ProjectID, "video_id": videoID, "error": uerr.Error()}).
			Error("Published but failed to persist completion")
		return uerr
	}

	j.Logger.WithFields(logrus.Fields{"project_id": j.ProjectID, "video_id": videoID}).Info("Publish completed")
	return nil
}

func (j *PublishVideoJob) publish(ctx context.Context) (string, error) {
	project, err := j.fetchProject()
	if err != nil {
		return "", err
	}
	if project.ChannelID == nil {
		return "", fmt.Errorf("project has no linked channel")
	}

	channel, err := j.fetchChannel(*project.ChannelID)
	if err != nil {
		return "", err
	}

	tokens, err := j.decryptTokens(channel)
	if err != nil {
		return "", err
	}
	if tokens.NeedsRefresh(time.Now()) {
		tokens, err = j.refreshAndPersist(ctx, channel.ID, tokens)
		if err != nil {
			return "", err
		}
	}

	version, err := j.resolveVersion(project)
	if err != nil {
		return "", err
	}

	videoBytes, err := j.download(j.resolveViewURL(version.FileURL))
	if err != nil {
		return "", fmt.Errorf("could not download version %d: %w", version.VersionNumber, err)
	}

	meta := youtube.VideoMetadata{Title: project.Title}
	if project.VideoTitle != nil && *project.VideoTitle != "" {
		meta.Title = *project.VideoTitle
	}
	if project.VideoDescription != nil {
		meta.Description = *project.VideoDescription
	}

	videoID, err := j.Platform.UploadVideo(ctx, tokens.AccessToken, meta, bytes.NewReader(videoBytes))
	if youtube.IsAuthError(err) {
		// One forced refresh-and-retry on an auth-class failure.
		j.Logger.WithField("project_id", j.ProjectID).Warn("Upload rejected as unauthorized, forcing token refresh")
		tokens, err = j.refreshAndPersist(ctx, channel.ID, tokens)
		if err != nil {
			return "", err
		}
		videoID, err = j.Platform.UploadVideo(ctx, tokens.AccessToken, meta, bytes.NewReader(videoBytes))
	}
	if err != nil {
		return "", err
	}

	j.setThumbnail(ctx, tokens.AccessToken, videoID, project.ID)
	return videoID, nil
}

func (j *PublishVideoJob) fetchProject() (*models.Project, error) {
	var projects []models.Project
	body, _, err := j.DB.From("projects").Select("*", "", false).Eq("id", j.ProjectID.String()).Execute()
	if err != nil {
		return nil, fmt.Errorf("could not fetch project: %w", err)
	}
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("could not decode project: %w", err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("project %s not found", j.ProjectID)
	}
	return &projects[0], nil
}

func (j *PublishVideoJob) fetchChannel(channelID uuid.UUID) (*models.YouTubeChannel, error) {
	var channels []models.YouTubeChannel
	body, _, err := j.DB.From("youtube_channels").Select("*", "", false).Eq("id", channelID.String()).Execute()
	if err != nil {
		return nil, fmt.Errorf("could not fetch channel: %w", err)
	}
	if err := json.Unmarshal(body, &channels); err != nil {
		return nil, fmt.Errorf("could not decode channel: %w", err)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}
	return &channels[0], nil
}

func (j *PublishVideoJob) decryptTokens(channel *models.YouTubeChannel) (youtube.TokenPair, error) {
	access, err := j.Cipher.Decrypt(channel.AccessTokenEncrypted)
	if err != nil {
		return youtube.TokenPair{}, fmt.Errorf("could not decrypt access token: %w", err)
	}
	refresh, err := j.Cipher.Decrypt(channel.RefreshTokenEncrypted)
	if err != nil {
		return youtube.TokenPair{}, fmt.Errorf("could not decrypt refresh token: %w", err)
	}
	return youtube.TokenPair{AccessToken: access, RefreshToken: refresh, Expiry: channel.TokenExpiry}, nil
}

func (j *PublishVideoJob) refreshAndPersist(ctx context.Context, channelRowID uuid.UUID, tokens youtube.TokenPair) (youtube.TokenPair, error) {
	fresh, err := j.Platform.RefreshAccessToken(ctx, tokens.RefreshToken)
	if err != nil {
		return youtube.TokenPair{}, fmt.Errorf("token refresh failed: %w", err)
	}

	update := map[string]interface{}{
		"access_token_encrypted":  j.Cipher.Encrypt(fresh.AccessToken),
		"refresh_token_encrypted": j.Cipher.Encrypt(fresh.RefreshToken),
		"token_expiry":            fresh.Expiry,
		"updated_at":              time.Now(),
	}
	if _, _, err := j.DB.From("youtube_channels").Update(update, "", "").Eq("id", channelRowID.String()).Execute(); err != nil {
		return youtube.TokenPair{}, fmt.Errorf("could not persist refreshed tokens: %w", err)
	}
	return *fresh, nil
}

func (j *PublishVideoJob) resolveVersion(project *models.Project) (*models.VideoVersion, error) {
	number := j.VersionNumber
	if number == 0 {
		if project.FinalVersionNumber == nil {
			return nil, fmt.Errorf("no version selected and no final version set")
		}
		number = *project.FinalVersionNumber
	}

	var versions []models.VideoVersion
	body, _, err := j.DB.From("video_versions").Select("*", "", false).
		Eq("project_id", j.ProjectID.String()).
		Eq("version_number", fmt.Sprintf("%d", number)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("could not fetch version %d: %w", number, err)
	}
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("could not decode version: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("version %d not found for project %s", number, j.ProjectID)
	}
	return &versions[0], nil
}

// resolveViewURL swaps a stored public URL for a short-lived signed one when
// the object path can be recovered; on any resolution error the raw stored
// URL is used as-is.
func (j *PublishVideoJob) resolveViewURL(fileURL string) string {
	marker := "/" + j.Storage.Bucket + "/"
	idx := strings.Index(fileURL, marker)
	if idx < 0 {
		return fileURL
	}
	path := fileURL[idx+len(marker):]
	signed, err := j.Storage.SignedViewURL(path, 3600)
	if err != nil {
		j.Logger.WithFields(logrus.Fields{"path": path, "error": err.Error()}).Warn("Falling back to raw file URL")
		return fileURL
	}
	return signed
}

func (j *PublishVideoJob) download(url string) ([]byte, error) {
	resp, err := j.Downloader.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// setThumbnail is best-effort: the video is already live, so a thumbnail
// failure is logged and the publish still completes.
func (j *PublishVideoJob) setThumbnail(ctx context.Context, accessToken, videoID string, projectID uuid.UUID) {
	var thumbs []models.Upload
	body, _, err := j.DB.From("uploads").Select("*", "", false).
		Eq("project_id", projectID.String()).
		Eq("file_type", models.FileTypeThumbnail).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		j.Logger.WithField("error", err.Error()).Warn("Could not look up thumbnail upload")
		return
	}
	if err := json.Unmarshal(body, &thumbs); err != nil || len(thumbs) == 0 {
		return
	}

	thumbBytes, err := j.download(j.resolveViewURL(thumbs[0].FileURL))
	if err != nil {
		j.Logger.WithField("error", err.Error()).Warn("Could not download thumbnail")
		return
	}
	if err := j.Platform.SetThumbnail(ctx, accessToken, videoID, bytes.NewReader(thumbBytes)); err != nil {
		j.Logger.WithFields(logrus.Fields{"video_id": videoID, "error": err.Error()}).Warn("Thumbnail upload failed")
	}
}

func (j *PublishVideoJob) markFailed(message string) {
	update := map[string]interface{}{
		"publish_status": models.PublishStatusFailed,
		"publish_error":  message,
		"updated_at":     time.Now(),
	}
	if _, _, err := j.DB.From("projects").Update(update, "", "").Eq("id", j.ProjectID.String()).Execute(); err != nil {
		j.Logger.WithFields(logrus.Fields{"project_id": j.ProjectID, "error": err.Error()}).
			Error("Could not persist failed publish status")
	}
}
