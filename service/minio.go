package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioService archives rendered contract documents and signature images
// so signed evidence survives independently of the database
type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ArchiveDataURI decodes a base64 data URI and stores its payload under the
// given object name, preserving the declared content type
func (s *MinioService) ArchiveDataURI(ctx context.Context, objectName, dataURI string) error {
	contentType, payload, err := decodeDataURI(dataURI)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", objectName, err)
	}
	return nil
}

// ContractObjectName is the archive location of a contract's rendered document
func ContractObjectName(contractID, format string) string {
	ext := "html"
	if strings.EqualFold(format, "PDF") {
		ext = "pdf"
	}
	return fmt.Sprintf("contracts/%s/contract.%s", contractID, ext)
}

// SignatureObjectName is the archive location of one signer's signature image
func SignatureObjectName(contractID, signerType string) string {
	return fmt.Sprintf("signatures/%s/%s.png", contractID, strings.ToLower(signerType))
}

// ArchiveContractContent stores a rendered contract document
func (s *MinioService) ArchiveContractContent(ctx context.Context, contractID, dataURI string) (string, error) {
	format := "HTML"
	if strings.HasPrefix(dataURI, "data:application/pdf") {
		format = "PDF"
	}
	objectName := ContractObjectName(contractID, format)
	if err := s.ArchiveDataURI(ctx, objectName, dataURI); err != nil {
		return "", err
	}
	return objectName, nil
}

// ArchiveSignature stores a signer's rasterized signature image
func (s *MinioService) ArchiveSignature(ctx context.Context, contractID, signerType, dataURI string) (string, error) {
	objectName := SignatureObjectName(contractID, signerType)
	if err := s.ArchiveDataURI(ctx, objectName, dataURI); err != nil {
		return "", err
	}
	return objectName, nil
}

// GetPresignedURL generates a presigned URL for the object with expiration
func (s *MinioService) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteObject deletes an archived object
func (s *MinioService) DeleteObject(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// decodeDataURI splits "data:<type>;base64,<payload>" into its parts
func decodeDataURI(dataURI string) (contentType string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	contentType = strings.TrimSuffix(meta, ";base64")
	payload, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("malformed data URI payload: %w", err)
	}
	return contentType, payload, nil
}
