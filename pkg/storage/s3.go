package storage

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	// MaxLogoSize is the maximum allowed logo upload size (2MiB).
	MaxLogoSize = 2 * 1024 * 1024
	// MinLogoDimension is the minimum width/height for raster logos.
	MinLogoDimension = 200
)

// AllowedLogoTypes maps accepted logo MIME types to file extensions.
var AllowedLogoTypes = map[string]string{
	"image/svg+xml": ".svg",
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AssetsBucket         string
	PresignExpireMinutes int
}

// S3 provides object storage for branding assets.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the default chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &S3{
		client:   client,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// LogoValidation is the result of validating a logo upload.
type LogoValidation struct {
	ContentType string
	Ext         string
	Warning     string // non-blocking, e.g. PNG without alpha channel
}

// ValidateLogo checks a logo against the upload contract: MIME type must be
// svg/png/jpeg, size at most 2MiB, raster images at least 200x200. A PNG
// without an alpha channel passes with a warning.
func ValidateLogo(contentType string, data []byte) (*LogoValidation, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := AllowedLogoTypes[ct]
	if !ok {
		return nil, fmt.Errorf("unsupported logo type %q: use SVG, PNG, or JPEG", contentType)
	}
	if len(data) > MaxLogoSize {
		return nil, fmt.Errorf("logo exceeds %dMB limit", MaxLogoSize/(1024*1024))
	}
	v := &LogoValidation{ContentType: ct, Ext: ext}
	switch ct {
	case "image/svg+xml":
		// vector; no dimension check
	case "image/png":
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid PNG: %w", err)
		}
		if cfg.Width < MinLogoDimension || cfg.Height < MinLogoDimension {
			return nil, fmt.Errorf("logo must be at least %dx%d pixels, got %dx%d", MinLogoDimension, MinLogoDimension, cfg.Width, cfg.Height)
		}
		if !pngHasAlpha(cfg.ColorModel) {
			v.Warning = "PNG has no alpha channel; the logo may not blend with themed backgrounds"
		}
	case "image/jpeg":
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid JPEG: %w", err)
		}
		if cfg.Width < MinLogoDimension || cfg.Height < MinLogoDimension {
			return nil, fmt.Errorf("logo must be at least %dx%d pixels, got %dx%d", MinLogoDimension, MinLogoDimension, cfg.Width, cfg.Height)
		}
	}
	return v, nil
}

func pngHasAlpha(cm color.Model) bool {
	if cm == color.NRGBAModel || cm == color.NRGBA64Model {
		return true
	}
	if p, ok := cm.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// LogoKey returns the object key for a logo: {organizationId}/logo-{timestamp}.{ext}.
func LogoKey(organizationID, ext string) string {
	return fmt.Sprintf("%s/logo-%d%s", organizationID, time.Now().Unix(), ext)
}

// Upload streams an object to the assets bucket and returns its public URL.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AssetsBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
		ACL:           types.ObjectCannedACLPublicRead,
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.PublicObjectURL(key), nil
}

// DeleteObject removes an object from the assets bucket.
func (s *S3) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AssetsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PublicObjectURL returns the public URL for an object in the assets bucket.
func (s *S3) PublicObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.AssetsBucket, s.cfg.Region, key)
}

// GeneratePresignedDownloadURL returns a pre-signed GET URL, for buckets
// that are not publicly readable.
func (s *S3) GeneratePresignedDownloadURL(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AssetsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.PresignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}
