package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores submission documents as raw Cloudinary assets addressed by their storage path.
type Service struct {
	client    *cloudinary.Cloudinary
	cloudName string
	folder    string
	logger    zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client:    cld,
		cloudName: cfg.CloudName,
		folder:    strings.Trim(cfg.Folder, "/"),
		logger:    logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

func (s *Service) publicID(name string) string {
	name = strings.TrimLeft(name, "/")
	if s.folder == "" {
		return name
	}
	return s.folder + "/" + name
}

// Exists reports whether an asset is already stored under name.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	result, err := s.client.Admin.Asset(ctx, admin.AssetParams{
		PublicID:  s.publicID(name),
		AssetType: api.File,
	})
	if err != nil {
		return false, fmt.Errorf("failed to query asset: %w", err)
	}
	if result.Error.Message != "" {
		if strings.Contains(strings.ToLower(result.Error.Message), "not found") {
			return false, nil
		}
		return false, errors.New(result.Error.Message)
	}
	return result.PublicID != "", nil
}

// Save uploads the document as a raw asset and returns its secure URL.
func (s *Service) Save(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		PublicID:     s.publicID(name),
		ResourceType: string(api.File),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", errors.New(result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("submission stored in cloudinary")

	return result.SecureURL, nil
}

// URL builds the delivery URL of a stored asset.
func (s *Service) URL(name string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/raw/upload/%s", s.cloudName, s.publicID(name))
}
