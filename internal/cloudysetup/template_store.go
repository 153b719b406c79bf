package cloudysetup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore reads and writes whole objects in a bucket.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte) error
}

// blobStoreFactory builds a BlobStore for one call.
type blobStoreFactory func(ctx context.Context, region string, creds Credentials) (BlobStore, error)

// TemplateStore saves and loads resource documents. A location is either a
// local file path or an s3://bucket/key URI.
type TemplateStore struct {
	Region      string
	Credentials Credentials

	newBlobStore blobStoreFactory
}

// NewTemplateStore returns a TemplateStore that reaches S3 in region.
func NewTemplateStore(region string, creds Credentials) *TemplateStore {
	return &TemplateStore{Region: region, Credentials: creds, newBlobStore: newS3BlobStore}
}

// Save writes desc to location as indented JSON. Local files are written
// atomically with mode 0600.
func (s *TemplateStore) Save(ctx context.Context, location string, desc ResourceDescriptor) error {
	if location == "" {
		return newValidationError("location", "must not be empty")
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	data = append(data, '\n')

	if bucket, key, ok := splitS3URI(location); ok {
		store, err := s.blobStore(ctx)
		if err != nil {
			return err
		}
		if err := store.Put(ctx, bucket, key, data); err != nil {
			return newControlPlaneError("PutObject", err)
		}
		return nil
	}
	return writeFileAtomic(location, data)
}

// Load reads the document at location, validates it against the resource
// document schema and decodes it. A missing Operation defaults to create.
func (s *TemplateStore) Load(ctx context.Context, location string) (ResourceDescriptor, error) {
	if location == "" {
		return ResourceDescriptor{}, newValidationError("location", "must not be empty")
	}
	var data []byte
	if bucket, key, ok := splitS3URI(location); ok {
		store, err := s.blobStore(ctx)
		if err != nil {
			return ResourceDescriptor{}, err
		}
		data, err = store.Get(ctx, bucket, key)
		if err != nil {
			return ResourceDescriptor{}, newControlPlaneError("GetObject", err)
		}
	} else {
		var err error
		data, err = os.ReadFile(location)
		if err != nil {
			return ResourceDescriptor{}, fmt.Errorf("read template %s: %w", location, err)
		}
	}
	return decodeTemplate(data)
}

func (s *TemplateStore) blobStore(ctx context.Context) (BlobStore, error) {
	factory := s.newBlobStore
	if factory == nil {
		factory = newS3BlobStore
	}
	return factory(ctx, s.Region, s.Credentials)
}

// decodeTemplate validates and decodes a saved resource document.
func decodeTemplate(data []byte) (ResourceDescriptor, error) {
	if err := ValidateDocument(data); err != nil {
		return ResourceDescriptor{}, err
	}
	var desc ResourceDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return ResourceDescriptor{}, fmt.Errorf("decode template: %w", err)
	}
	if desc.Operation == "" {
		desc.Operation = OpCreate
	}
	return desc, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write template: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod template: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close template: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename template: %w", err)
	}
	return nil
}

// s3BlobStore implements BlobStore with the S3 SDK.
type s3BlobStore struct {
	client *s3.Client
}

func newS3BlobStore(ctx context.Context, region string, creds Credentials) (BlobStore, error) {
	cfg, err := loadAWSConfig(ctx, region, creds)
	if err != nil {
		return nil, err
	}
	return &s3BlobStore{client: s3.NewFromConfig(cfg)}, nil
}

func (b *s3BlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3BlobStore) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}
