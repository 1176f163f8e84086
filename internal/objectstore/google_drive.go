package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/gdfetch/internal/api"
	"github.com/dl-alexandre/gdfetch/internal/auth"
	"github.com/dl-alexandre/gdfetch/internal/config"
	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
)

// GoogleDriveStore is the store tag for Google Drive files
const GoogleDriveStore = "GoogleDrive"

// Google Drive share link shape: https://drive.google.com/file/d/<id>[/...]
const (
	driveScheme     = "https"
	driveHost       = "drive.google.com"
	driveFilePrefix = "/file/d/"
	// resourceKeyParam carries the resource key of older link-shared files
	resourceKeyParam = "resourcekey"
)

// DriveService is the authenticated handle the resolver talks to
type DriveService interface {
	GetFile(ctx context.Context, reqCtx *types.RequestContext, fileID string, fields string) (*types.DriveFile, error)
	GetMedia(fileID string) api.MediaRequest
}

// ServiceFactory creates a DriveService from a key file
type ServiceFactory interface {
	Create(ctx context.Context, keyFile string) (DriveService, error)
}

// ServiceFactoryFunc adapts a function to ServiceFactory
type ServiceFactoryFunc func(ctx context.Context, keyFile string) (DriveService, error)

func (f ServiceFactoryFunc) Create(ctx context.Context, keyFile string) (DriveService, error) {
	return f(ctx, keyFile)
}

// FromAuthFactory exposes an auth.ServiceFactory as a ServiceFactory
func FromAuthFactory(factory *auth.ServiceFactory) ServiceFactory {
	return ServiceFactoryFunc(func(ctx context.Context, keyFile string) (DriveService, error) {
		client, err := factory.Create(ctx, keyFile)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

// FileLoader streams a media request into a sink
type FileLoader interface {
	LoadToFile(ctx context.Context, w io.Writer, req api.MediaRequest) error
}

// GoogleDriveOptions configures a GoogleDrive resolver
type GoogleDriveOptions struct {
	// KeyFile defaults to google-api-key.json in the config directory
	KeyFile    string
	Factory    ServiceFactory
	Downloader FileLoader
	Logger     logging.Logger
}

// GoogleDrive resolves Google Drive share links to local files.
// It is not safe for concurrent use; create one per goroutine.
type GoogleDrive struct {
	KeyFile string

	factory    ServiceFactory
	downloader FileLoader
	logger     logging.Logger
	service    DriveService
}

// NewGoogleDrive creates a resolver. The Drive service is created on first use.
func NewGoogleDrive(opts GoogleDriveOptions) *GoogleDrive {
	g := &GoogleDrive{
		KeyFile:    opts.KeyFile,
		factory:    opts.Factory,
		downloader: opts.Downloader,
		logger:     opts.Logger,
	}
	if g.logger == nil {
		g.logger = logging.NewNoOpLogger()
	}
	if g.KeyFile == "" {
		g.KeyFile = config.DefaultConfig().KeyFile
	}
	if g.factory == nil {
		g.factory = FromAuthFactory(auth.NewServiceFactory(nil, nil, g.logger))
	}
	if g.downloader == nil {
		g.downloader = NewDownloader(DownloaderOptions{Logger: g.logger})
	}
	return g
}

// Name implements RemoteSource
func (g *GoogleDrive) Name() string {
	return GoogleDriveStore
}

// CheckResource reports whether rawURL is a Google Drive file link
func (g *GoogleDrive) CheckResource(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != driveScheme || !strings.EqualFold(u.Host, driveHost) {
		return false
	}
	return fileIDFromPath(u.Path) != ""
}

// ParseRemote extracts the file ID from a link accepted by CheckResource
func (g *GoogleDrive) ParseRemote(rawURL string) RemoteFile {
	remote := RemoteFile{Store: GoogleDriveStore}
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.Index(rawURL, driveFilePrefix); i >= 0 {
			remote.FileID = fileIDFromPath(rawURL[i:])
		}
		return remote
	}
	remote.FileID = fileIDFromPath(u.Path)
	remote.ResourceKey = u.Query().Get(resourceKeyParam)
	return remote
}

func fileIDFromPath(p string) string {
	rest, ok := strings.CutPrefix(p, driveFilePrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// driveService returns the Drive service, creating it on first use
func (g *GoogleDrive) driveService(ctx context.Context) (DriveService, error) {
	if g.service != nil {
		return g.service, nil
	}
	svc, err := g.factory.Create(ctx, g.KeyFile)
	if err != nil {
		return nil, err
	}
	g.service = svc
	return svc, nil
}

// GetFilename returns the file's name, or fileID when the metadata has none
func (g *GoogleDrive) GetFilename(ctx context.Context, fileID string) (string, error) {
	svc, err := g.driveService(ctx)
	if err != nil {
		return "", err
	}

	reqCtx := api.NewRequestContext(GoogleDriveStore, types.RequestTypeMetadata, fileID)
	file, err := svc.GetFile(ctx, reqCtx, fileID, "name")
	if err != nil {
		return "", err
	}
	if file == nil || file.Name == "" {
		g.logger.WithTraceID(reqCtx.TraceID).Debug("File has no name, using ID",
			logging.F("fileId", fileID),
		)
		return fileID, nil
	}
	return file.Name, nil
}

// DLLocation returns where remote should be written: dlDir/<name> when dlDir
// is set, otherwise inputDir/<store>/<name>, creating inputDir/<store>.
func (g *GoogleDrive) DLLocation(ctx context.Context, remote RemoteFile, inputDir, dlDir string) (string, error) {
	name, err := g.GetFilename(ctx, remote.FileID)
	if err != nil {
		return "", err
	}
	name = localName(name, remote.FileID)

	if dlDir != "" {
		return filepath.Join(dlDir, name), nil
	}

	dir := filepath.Join(inputDir, remote.Store)
	if err := utils.SafeMakedir(dir); err != nil {
		return "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Failed to create download directory: %s", err)).
			WithContext("path", dir).
			Build(), err)
	}
	return filepath.Join(dir, name), nil
}

// localName keeps a Drive file name from escaping its directory
func localName(name, fileID string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "." || name == ".." {
		return fileID
	}
	return name
}

// DownloadFile writes the content of fileID to outputPath, truncating any existing file
func (g *GoogleDrive) DownloadFile(ctx context.Context, fileID, outputPath string) (err error) {
	svc, err := g.driveService(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Failed to create output file: %s", err)).
			WithContext("path", outputPath).
			Build(), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
				fmt.Sprintf("Failed to close output file: %s", cerr)).
				WithContext("path", outputPath).
				Build(), cerr)
		}
	}()

	reqCtx := api.NewRequestContext(GoogleDriveStore, types.RequestTypeDownload, fileID)
	g.logger.WithTraceID(reqCtx.TraceID).Info("Downloading file",
		logging.F("fileId", fileID),
		logging.F("path", outputPath),
	)

	ctx = logging.ContextWithTraceID(ctx, reqCtx.TraceID)
	return g.downloader.LoadToFile(ctx, f, svc.GetMedia(fileID))
}

// Download resolves rawURL and downloads it, returning the local path
func (g *GoogleDrive) Download(ctx context.Context, rawURL, inputDir, dlDir string) (string, error) {
	remote := g.ParseRemote(rawURL)

	if remote.ResourceKey != "" {
		svc, err := g.driveService(ctx)
		if err != nil {
			return "", err
		}
		if keyed, ok := svc.(interface{ ResourceKeys() *api.ResourceKeyManager }); ok {
			keyed.ResourceKeys().AddKey(remote.FileID, remote.ResourceKey)
		}
	}

	path, err := g.DLLocation(ctx, remote, inputDir, dlDir)
	if err != nil {
		return "", err
	}
	if err := g.DownloadFile(ctx, remote.FileID, path); err != nil {
		return "", err
	}
	return path, nil
}
