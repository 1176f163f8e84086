package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/gdfetch/internal/api"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	buildversion "github.com/dl-alexandre/gdfetch/pkg/version"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Drive service identity
const (
	ServiceName    = "drive"
	ServiceVersion = "v3"
)

// DriveScopes are the scopes requested for every Drive credential
var DriveScopes = []string{utils.ScopeFull}

// CredentialLoader turns a key file into an authorized HTTP client
type CredentialLoader interface {
	Authorize(ctx context.Context, keyFile string, scopes []string) (*http.Client, error)
}

// CredentialLoaderFunc adapts a function to CredentialLoader
type CredentialLoaderFunc func(ctx context.Context, keyFile string, scopes []string) (*http.Client, error)

func (f CredentialLoaderFunc) Authorize(ctx context.Context, keyFile string, scopes []string) (*http.Client, error) {
	return f(ctx, keyFile, scopes)
}

// ServiceBuilder builds an API client for a named, versioned service
type ServiceBuilder interface {
	Build(ctx context.Context, name, version string, httpClient *http.Client) (*api.Client, error)
}

// ServiceFactory creates authenticated Drive clients from service account keys
type ServiceFactory struct {
	loader  CredentialLoader
	builder ServiceBuilder
	logger  logging.Logger
}

// NewServiceFactory creates a factory. Nil collaborators fall back to
// ServiceAccountLoader and a DriveBuilder with default retry settings.
func NewServiceFactory(loader CredentialLoader, builder ServiceBuilder, logger logging.Logger) *ServiceFactory {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if loader == nil {
		loader = &ServiceAccountLoader{}
	}
	if builder == nil {
		builder = &DriveBuilder{
			MaxRetries:   utils.DefaultMaxRetries,
			RetryDelayMs: utils.DefaultRetryDelayMs,
			Logger:       logger,
		}
	}
	return &ServiceFactory{loader: loader, builder: builder, logger: logger}
}

// Create loads the key file and returns a Drive client. Every call
// authenticates again; nothing is cached.
func (f *ServiceFactory) Create(ctx context.Context, keyFile string) (*api.Client, error) {
	f.logger.Debug("Loading service account credentials",
		logging.F("keyFile", keyFile),
		logging.F("scopes", DriveScopes),
	)

	httpClient, err := f.loader.Authorize(ctx, keyFile, DriveScopes)
	if err != nil {
		f.logger.Error("Service account authorization failed",
			logging.F("keyFile", keyFile),
			logging.F("error", err.Error()),
		)
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("Failed to load service account credentials: %s", err)).
			WithContext("keyFile", keyFile).
			Build(), err)
	}

	client, err := f.builder.Build(ctx, ServiceName, ServiceVersion, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s service: %w", ServiceName, ServiceVersion, err)
	}
	return client, nil
}

// DriveBuilder builds Drive v3 clients
type DriveBuilder struct {
	MaxRetries   int
	RetryDelayMs int
	Logger       logging.Logger
	// Options are appended after the HTTP client option
	Options []option.ClientOption
}

func (b *DriveBuilder) Build(ctx context.Context, name, version string, httpClient *http.Client) (*api.Client, error) {
	if name != ServiceName || version != ServiceVersion {
		return nil, fmt.Errorf("unsupported service %s %s", name, version)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, b.Options...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	service.UserAgent = buildversion.UserAgent()
	return api.NewClient(service, b.MaxRetries, b.RetryDelayMs, b.Logger), nil
}
