package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// ServiceAccountLoader authorizes with a service account key file.
// The first token is fetched eagerly so bad credentials fail at load time.
type ServiceAccountLoader struct{}

// Authorize implements CredentialLoader
func (l *ServiceAccountLoader) Authorize(ctx context.Context, keyFile string, scopes []string) (*http.Client, error) {
	keyData, _, err := ReadServiceAccountKey(keyFile)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope required")
	}

	creds, err := google.CredentialsFromJSON(ctx, keyData, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	token, err := creds.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, creds.TokenSource)), nil
}

// ReadServiceAccountKey reads and validates a service account key file
func ReadServiceAccountKey(keyFilePath string) ([]byte, *ServiceAccountKey, error) {
	if keyFilePath == "" {
		return nil, nil, fmt.Errorf("service account key file required")
	}
	if _, err := os.Stat(keyFilePath); err != nil {
		return nil, nil, fmt.Errorf("service account key file not found: %s", keyFilePath)
	}
	keyData, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	var saKey ServiceAccountKey
	if err := json.Unmarshal(keyData, &saKey); err != nil {
		return nil, nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if saKey.Type != "service_account" {
		return nil, nil, fmt.Errorf("invalid service account key type: %s", saKey.Type)
	}
	if saKey.ClientEmail == "" {
		return nil, nil, fmt.Errorf("missing client_email in service account key")
	}
	if saKey.PrivateKey == "" {
		return nil, nil, fmt.Errorf("missing private_key in service account key")
	}
	return keyData, &saKey, nil
}
