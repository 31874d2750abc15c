package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3"
	defaultAPIURL    = "https://www.googleapis.com/youtube/v3"

	// Access tokens expiring inside this horizon get refreshed before any
	// platform call.
	RefreshHorizon = time.Hour

	// Lifetime assumed for a refreshed token when the platform omits
	// expires_in from its response.
	fallbackTokenLifetime = 72 * time.Hour
)

// TokenPair is the decrypted OAuth token state for a channel.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// NeedsRefresh reports whether the access token expires inside the refresh
// horizon.
func (tp TokenPair) NeedsRefresh(now time.Time) bool {
	return tp.Expiry.Before(now.Add(RefreshHorizon))
}

// APIError carries the platform's HTTP status so callers can distinguish
// auth-class failures (which get one forced refresh-and-retry) from the rest.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api error (status %d): %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is an authentication-class platform error.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// Client is a thin HTTP client for the video platform's OAuth and upload
// endpoints. URL fields are overridable for tests.
type Client struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UploadURL    string
	APIURL       string
	HTTPClient   *http.Client
	Logger       *logrus.Logger
}

// NewClient builds a platform client with the production endpoints.
func NewClient(clientID, clientSecret string, logger *logrus.Logger) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     defaultTokenURL,
		UploadURL:    defaultUploadURL,
		APIURL:       defaultAPIURL,
		HTTPClient:   &http.Client{Timeout: 10 * time.Minute},
		Logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// ExchangeCode trades an OAuth authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenPair, error) {
	form := url.Values{
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	return c.tokenCall(ctx, form, "")
}

// RefreshAccessToken obtains a fresh access token, explicitly requesting
// offline access so the platform grants the long effective lifetime.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
		"access_type":   {"offline"},
	}
	return c.tokenCall(ctx, form, refreshToken)
}

func (c *Client) tokenCall(ctx context.Context, form url.Values, priorRefreshToken string) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("error decoding token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		msg := tr.ErrorDesc
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = string(body)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	// Refresh responses usually omit the refresh token; keep the prior one.
	refresh := tr.RefreshToken
	if refresh == "" {
		refresh = priorRefreshToken
	}

	expiry := time.Now().Add(fallbackTokenLifetime)
	if tr.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return &TokenPair{AccessToken: tr.AccessToken, RefreshToken: refresh, Expiry: expiry}, nil
}

// VideoMetadata is the snippet/status payload for an upload.
type VideoMetadata struct {
	Title       string
	Description string
	Privacy     string // private, unlisted, public
}

type uploadResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadVideo streams video bytes to the platform's multipart upload endpoint
// and returns the external video id.
func (c *Client) UploadVideo(ctx context.Context, accessToken string, meta VideoMetadata, video io.Reader) (string, error) {
	privacy := meta.Privacy
	if privacy == "" {
		privacy = "private"
	}

	snippet := map[string]interface{}{
		"snippet": map[string]interface{}{
			"title":       meta.Title,
			"description": meta.Description,
		},
		"status": map[string]interface{}{
			"privacyStatus": privacy,
		},
	}
	snippetJSON, err := json.Marshal(snippet)
	if err != nil {
		return "", fmt.Errorf("error marshalling video metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("error creating metadata part: %w", err)
	}
	if _, err := metaPart.Write(snippetJSON); err != nil {
		return "", fmt.Errorf("error writing metadata part: %w", err)
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", "video/*")
	videoPart, err := writer.CreatePart(videoHeader)
	if err != nil {
		return "", fmt.Errorf("error creating video part: %w", err)
	}
	if _, err := io.Copy(videoPart, video); err != nil {
		return "", fmt.Errorf("error buffering video bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error finalizing multipart body: %w", err)
	}

	uploadURL := fmt.Sprintf("%s/videos?uploadType=multipart&part=snippet,status", c.UploadURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("error creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading upload response: %w", err)
	}

	var ur uploadResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return "", fmt.Errorf("error decoding upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || ur.ID == "" {
		msg := string(body)
		if ur.Error != nil {
			msg = ur.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return ur.ID, nil
}

// SetThumbnail uploads a custom thumbnail for an already-uploaded video.
func (c *Client) SetThumbnail(ctx context.Context, accessToken, videoID string, thumbnail io.Reader) error {
	thumbURL := fmt.Sprintf("%s/thumbnails/set?videoId=%s", c.UploadURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, thumbURL, thumbnail)
	if err != nil {
		return fmt.Errorf("error creating thumbnail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("thumbnail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}

// ChannelInfo describes the authenticated user's channel.
type ChannelInfo struct {
	ChannelID    string
	Title        string
	ThumbnailURL string
}

// FetchChannelInfo resolves the channel owned by the token's account.
func (c *Client) FetchChannelInfo(ctx context.Context, accessToken string) (*ChannelInfo, error) {
	infoURL := fmt.Sprintf("%s/channels?part=snippet&mine=true", c.APIURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating channel request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading channel response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title      string `json:"title"`
				Thumbnails struct {
					Default struct {
						URL string `json:"url"`
					} `json:"default"`
				} `json:"thumbnails"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("error decoding channel response: %w", err)
	}
	if len(parsed.Items) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no channel found for account"}
	}

	item := parsed.Items[0]
	return &ChannelInfo{
		ChannelID:    item.ID,
		Title:        item.Snippet.Title,
		ThumbnailURL: item.Snippet.Thumbnails.Default.URL,
	}, nil
}
