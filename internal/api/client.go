// Package api consumes the exam platform's REST backend, used only to
// obtain the room ticket: the room token derived from the exam id plus the
// local participant identity and role.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lenconda/exampro-agent/internal/domain"
)

type ticketResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    domain.RoomTicket `json:"data"`
}

// Client fetches room tickets from the exam API. It implements
// domain.TicketFetcher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client authenticating with the given bearer
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchRoomTicket asks the exam API for the proctoring room ticket of one
// exam.
func (c *Client) FetchRoomTicket(examID string) (*domain.RoomTicket, error) {
	url := fmt.Sprintf("%s/exam/%s/room-ticket", c.baseURL, examID)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var ticketResp ticketResponse
	if err := json.Unmarshal(body, &ticketResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if ticketResp.Code != 0 && ticketResp.Code != http.StatusOK {
		return nil, fmt.Errorf("API error (code=%d): %s", ticketResp.Code, ticketResp.Message)
	}

	if ticketResp.Data.Room == "" {
		return nil, fmt.Errorf("API returned no room token for exam %s", examID)
	}
	return &ticketResp.Data, nil
}
