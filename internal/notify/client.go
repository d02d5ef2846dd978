// Package notify отправляет события прогресса на внешний вебхук.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Event описывает одно уведомление о событии прогресса.
type Event struct {
	UserID     int64     `json:"user_id"`
	Kind       string    `json:"kind"`
	MissionID  string    `json:"mission_id,omitempty"`
	Crew       string    `json:"crew,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Виды событий.
const (
	KindMissionCompleted = "mission_completed"
	KindCrewGreeting     = "crew_greeting"
)

// Client инкапсулирует HTTP-доставку событий на вебхук. Пустой адрес означает,
// что уведомления отключены: все вызовы становятся no-op.
type Client struct {
	url        string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент доставки событий по указанному адресу.
func NewClient(url string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.HTTPClient.Timeout = 5 * time.Second
	c.Logger = nil

	return &Client{
		url:        url,
		httpClient: c,
	}
}

// MissionCompleted отправляет событие о завершении миссии.
func (c *Client) MissionCompleted(ctx context.Context, userID int64, missionID string) error {
	return c.send(ctx, Event{
		UserID:     userID,
		Kind:       KindMissionCompleted,
		MissionID:  missionID,
		OccurredAt: time.Now().UTC(),
	})
}

// CrewGreeting отправляет одноразовое приветствие от команды пользователя.
func (c *Client) CrewGreeting(ctx context.Context, userID int64, crew string) error {
	return c.send(ctx, Event{
		UserID:     userID,
		Kind:       KindCrewGreeting,
		Crew:       crew,
		OccurredAt: time.Now().UTC(),
	})
}

func (c *Client) send(ctx context.Context, e Event) error {
	if c == nil || c.url == "" {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
