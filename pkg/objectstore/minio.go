// Package objectstore implements the MINIO data-handler collaborator
// spec §4.B/§4.G reference: when a message's data_handler is MINIO,
// dispatch fetches/stores payload bytes here instead of carrying them
// inline, using github.com/minio/minio-go/v7 against a configured
// MinIO (or any S3-compatible) endpoint.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config is one entry of the §6 configuration schema's
// data_stores.minio list.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Bucket   string
	UseTLS   bool
}

// Store is the MinIO-backed implementation of pkg/dispatch.DataStore.
// References it returns are opaque bucket-relative object keys; the
// sending side's reply payload carries exactly the bytes Fetch needs
// to retrieve the same object on the receiving side.
type Store struct {
	client *minio.Client
	bucket string
}

// New dials endpoint (host:port) with the given credentials and
// ensures bucket exists, creating it if necessary.
func New(ctx context.Context, cfg Config) (*Store, error) {
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Username, cfg.Password, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: connecting to %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objectstore: checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("objectstore: creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Store uploads payload under a fresh object key and returns that key
// as the wire reference to embed in place of inline bytes, per spec
// §4.G point 9.
func (s *Store) Store(ctx context.Context, payload []byte) (string, error) {
	key := uuid.NewString()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: storing object %s: %w", key, err)
	}
	return key, nil
}

// Fetch downloads the object named by reference, per spec §4.G point
// 4's "fetch payload bytes from data store" on a MINIO-handled
// inbound message.
func (s *Store) Fetch(ctx context.Context, reference string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, reference, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: fetching object %s: %w", reference, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("objectstore: reading object %s: %w", reference, err)
	}
	return data, nil
}
