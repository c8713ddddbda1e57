package gcp

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions turns inline JSON or a credentials file path into client
// options. Inline JSON wins when both are set.
func ClientOptions(credentialsJSON, credentialsFile string) []option.ClientOption {
	creds := strings.TrimSpace(credentialsJSON)
	if creds == "" {
		creds = strings.TrimSpace(credentialsFile)
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
