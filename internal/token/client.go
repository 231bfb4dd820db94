// Package token provides the client for the external token service and local
// inspection of pasted access tokens.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultParticipantName is used when the caller supplies no display name.
const DefaultParticipantName = "webapp-user"

// ErrEmptyToken is returned when a manually supplied token is blank.
var ErrEmptyToken = errors.New("token is empty")

// Credential authorizes one participant to join one room.
type Credential struct {
	AccessToken string `json:"accessToken"`
	Identity    string `json:"identity"`
	RoomName    string `json:"roomName"`
}

// Client fetches short-lived room credentials from the token service.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a token client for the given endpoint, e.g.
// http://localhost:8000/api/token.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type fetchRequest struct {
	ParticipantName string `json:"participantName,omitempty"`
}

// Fetch requests a credential. A random suffix is appended to the display
// name so two tabs of the same visitor never collide on identity. The caller
// does not retry; a failure surfaces as a connection-status message.
func (c *Client) Fetch(ctx context.Context, displayName string) (*Credential, error) {
	if displayName == "" {
		displayName = DefaultParticipantName
	}
	name := fmt.Sprintf("%s-%s", displayName, uuid.NewString()[:8])

	body, err := json.Marshal(fetchRequest{ParticipantName: name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, errors.New("token service returned an empty access token")
	}

	return &cred, nil
}

// Inspect recovers identity and room from a pasted token without verifying
// the signature. The values are display-only; the room server is the one
// that actually validates the token.
func Inspect(raw string) (*Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	cred := &Credential{AccessToken: raw}
	if sub, err := claims.GetSubject(); err == nil {
		cred.Identity = sub
	}
	if video, ok := claims["video"].(map[string]interface{}); ok {
		if room, ok := video["room"].(string); ok {
			cred.RoomName = room
		}
	}

	return cred, nil
}
