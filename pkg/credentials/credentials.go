package credentials

import (
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/zfogg/sidechain/chat/pkg/config"
)

// Credentials identify the local user. UserID is what the messaging core
// compares inbound senders against.
type Credentials struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
}

// Load loads credentials from disk. A missing file yields nil, nil.
func Load() (*Credentials, error) {
	path := config.GetCredentialsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// Save saves credentials to disk
func Save(creds *Credentials) error {
	path := config.GetCredentialsPath()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	// owner read/write only
	return os.WriteFile(path, data, 0600)
}

// Delete deletes credentials from disk
func Delete() error {
	return os.Remove(config.GetCredentialsPath())
}

// IsExpired checks if the access token is expired. A zero expiry never expires.
func (c *Credentials) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// IsValid checks if credentials are usable for a messaging session
func (c *Credentials) IsValid() bool {
	return c.AccessToken != "" && c.UserID != "" && !c.IsExpired()
}
