package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultBucketName  = "peggymeter-exports"
	defaultPrefix      = "mood-history/"
	defaultContentType = "application/json"
)

// Config controls how the S3 storage service behaves.
type Config struct {
	Bucket string
	Prefix string
	Region string
}

// Service uploads mood history exports to the configured S3 bucket/prefix.
type Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	region   string
}

// New constructs a Service that uploads to the peggymeter-exports/mood-history prefix by default.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucketName
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	requestedRegion := strings.TrimSpace(cfg.Region)

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if requestedRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(requestedRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	effectiveRegion := awsCfg.Region
	if detectedRegion, err := manager.GetBucketRegion(ctx, client, bucket); err == nil && strings.TrimSpace(detectedRegion) != "" {
		effectiveRegion = detectedRegion
		awsCfg.Region = detectedRegion
		client = s3.NewFromConfig(awsCfg)
	}
	return &Service{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		region:   effectiveRegion,
	}, nil
}

// UploadExport stores the export bytes under the configured prefix and returns their https URL.
func (s *Service) UploadExport(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if s == nil || s.uploader == nil {
		return "", fmt.Errorf("storage service not initialized")
	}
	key, err := s.objectKey(objectName)
	if err != nil {
		return "", err
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if len(data) == 0 {
		return "", fmt.Errorf("export data is empty")
	}
	if err := s.upload(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return s.httpURL(key), nil
}

func (s *Service) objectKey(objectName string) (string, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return "", fmt.Errorf("object name is required")
	}
	key := path.Join(s.prefix, objectName)
	if path.Ext(key) == "" {
		key += ".json"
	}
	return key, nil
}

// ExportObject describes one uploaded export.
type ExportObject struct {
	Key          string
	URL          string
	Size         int64
	LastModified time.Time
}

// ListExports returns the exports previously uploaded for uid, newest first.
func (s *Service) ListExports(ctx context.Context, uid string) ([]ExportObject, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("storage service not initialized")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + uid + "/"),
	})
	var objects []ExportObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list exports: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects = append(objects, ExportObject{
				Key:          key,
				URL:          s.httpURL(key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sortExports(objects)
	return objects, nil
}

func sortExports(objects []ExportObject) {
	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].LastModified.After(objects[j].LastModified)
		}
		return objects[i].Key > objects[j].Key
	})
}

func (s *Service) upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-store"),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

func (s *Service) httpURL(key string) string {
	region := strings.TrimSpace(s.region)
	if region == "" || region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, region, key)
}
