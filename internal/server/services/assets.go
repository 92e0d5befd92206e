package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	wire "github.com/dlukins/caresync/internal/client/models"
	"github.com/dlukins/caresync/internal/common"
	"github.com/dlukins/caresync/internal/logging"
	sc "github.com/dlukins/caresync/internal/server/config"
)

const presignTTL = 15 * time.Minute

// AssetService issues presigned S3 URLs for photo assets. Objects are keyed
// by zone and owning record ID, never by client-supplied filenames.
type AssetService struct {
	backend Backend
	config  *sc.Config
	log     logging.Logger
}

func NewAssetService(backend Backend, config *sc.Config, log logging.Logger) *AssetService {
	return &AssetService{backend: backend, config: config, log: log}
}

func assetKey(zone wire.ZoneID, recordID string) string {
	return fmt.Sprintf("zones/%s/%s/%s",
		url.PathEscape(zone.Owner), url.PathEscape(zone.Name), recordID)
}

func (s *AssetService) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3AccessKey,
			s.config.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.config.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return s3.NewPresignClient(client), nil
}

// requireRecord checks the record exists in a zone visible to account.
func (s *AssetService) requireRecord(ctx context.Context, zone wire.ZoneID, recordID string) error {
	_, err := s.backend.store().Records.Get(ctx, zone.Owner, zone.Name, wire.RemoteName(recordID))
	if err != nil {
		return common.ErrorNotFound
	}
	return nil
}

// PresignPut returns an upload URL for the record's photo asset.
func (s *AssetService) PresignPut(ctx context.Context, zone wire.ZoneID, recordID string) (string, error) {
	if err := s.requireRecord(ctx, zone, recordID); err != nil {
		return "", err
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}
	req, err := pc.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(assetKey(zone, recordID)),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PresignGet returns a download URL for the record's photo asset.
func (s *AssetService) PresignGet(ctx context.Context, zone wire.ZoneID, recordID string) (string, error) {
	if err := s.requireRecord(ctx, zone, recordID); err != nil {
		return "", err
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}
	req, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(assetKey(zone, recordID)),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
