package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"stream-coin-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserSyncClient mirrors user identity data from the identity service into
// the local user_mirror table. The mirror feeds dashboards and settlement
// statements; ledger math never touches it.
type UserSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewUserSyncClient(db *gorm.DB) *UserSyncClient {
	baseURL := os.Getenv("IDENTITY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("IDENTITY_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("COIN_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("COIN_SERVICE_TOKEN environment variable is required for user sync")
	}

	return &UserSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *UserSyncClient) GetChangedUsers(ctx context.Context, since time.Time) ([]models.UserMirror, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/users", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("identity service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Users []models.UserMirror `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode identity service response: %w", err)
	}

	return response.Users, nil
}

// PollUsers keeps the user_mirror table fresh
func PollUsers(ctx context.Context, client *UserSyncClient, pollInterval time.Duration) {
	log.Println("Starting user mirror polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("User mirror polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			users, err := client.GetChangedUsers(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling users: %v", err)
				continue
			}

			if len(users) == 0 {
				continue
			}

			now := time.Now().UTC()
			for i := range users {
				users[i].SyncedAt = now
			}

			if err := client.DB.Clauses(
				clause.OnConflict{
					Columns: []clause.Column{{Name: "user_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"display_name",
						"role",
						"is_active",
						"synced_at",
						"updated_at",
					}),
				},
			).Create(&users).Error; err != nil {
				log.Printf("❌ Failed to upsert %d user(s) into user_mirror: %v", len(users), err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			lastSyncTime = logTime
			log.Printf("📥 Upserted %d user(s) into user_mirror table.", len(users))
		}
	}
}
