package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// MinioStore keeps the registry as a single JSON object in a bucket.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	key        string
}

var _ domreg.Store = (*MinioStore)(nil)

// NewMinio buat koneksi MinIO
func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey, key string, useSSL bool) (*MinioStore, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: cli, bucketName: bucket, key: key}, nil
}

// Load treats a missing object as an empty registry.
func (s *MinioStore) Load(ctx context.Context) (map[scans.ScanID]domreg.ProcessedRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, s.key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return map[scans.ScanID]domreg.ProcessedRecord{}, nil
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return map[scans.ScanID]domreg.ProcessedRecord{}, nil
		}
		return nil, err
	}
	return decodeRecords(data)
}

// Save overwrites the object; a single PUT is atomic on the object store.
func (s *MinioStore) Save(ctx context.Context, records map[scans.ScanID]domreg.ProcessedRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucketName, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// Ping checks the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
