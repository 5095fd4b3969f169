package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bucketName = "media"

// GridFSStore stores blobs in a MongoDB GridFS bucket keyed by path.
type GridFSStore struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	baseURL string
}

// NewGridFSStore connects to MongoDB and opens the media bucket.
func NewGridFSStore(ctx context.Context, uri, dbName, baseURL string) (*GridFSStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(dbName), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (s *GridFSStore) Upload(ctx context.Context, blobPath string, contentType string, body io.Reader) error {
	clean, err := CleanPath(blobPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err := s.bucket.UploadFromStream(clean, body, opts); err != nil {
		return fmt.Errorf("gridfs upload %s: %w", clean, err)
	}
	return nil
}

func (s *GridFSStore) URL(blobPath string) string {
	return publicURL(s.baseURL, blobPath)
}

func (s *GridFSStore) Open(ctx context.Context, blobPath string) (io.ReadCloser, string, error) {
	clean, err := CleanPath(blobPath)
	if err != nil {
		return nil, "", err
	}
	stream, err := s.bucket.OpenDownloadStreamByName(clean)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, "", ErrBlobNotFound
	}
	if err != nil {
		return nil, "", err
	}
	contentType := "application/octet-stream"
	if file := stream.GetFile(); file != nil && file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup("contentType").StringValueOK(); ok && ct != "" {
			contentType = ct
		}
	}
	return stream, contentType, nil
}

// Close disconnects from MongoDB.
func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
