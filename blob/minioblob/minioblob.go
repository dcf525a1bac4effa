// Package minioblob implements a blob store adapter against any
// S3-compatible object store via minio-go. References take the form
// "s3:<bucket>/<key>"; content type is stored as the object's
// Content-Type metadata.
package minioblob

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/blob/driver"
	"github.com/fleetpx/ephimg/verr"
)

// Scheme identifies this adapter in reference strings and config.
const Scheme = "s3"

var _ driver.Bucket = (*bucket)(nil)

type bucket struct {
	client     *minio.Client
	bucketName string
}

// OpenBucket returns a *blob.Bucket backed by the given bucket on client,
// which must already exist.
func OpenBucket(ctx context.Context, client *minio.Client, bucketName string) (*blob.Bucket, error) {
	if client == nil {
		return nil, fmt.Errorf("minioblob: client is required")
	}
	if bucketName == "" {
		return nil, fmt.Errorf("minioblob: bucketName is required")
	}
	return blob.NewBucket(&bucket{client: client, bucketName: bucketName}), nil
}

func (b *bucket) ProviderName() string { return Scheme }

func (b *bucket) ErrorCode(err error) verr.ErrorCode {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied":
		return verr.PermissionDenied
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return verr.NotFound
	default:
		return verr.Unknown
	}
}

func (b *bucket) key(ref string) (string, error) {
	prefix := Scheme + ":" + b.bucketName + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", fmt.Errorf("minioblob: malformed reference %q", ref)
	}
	return strings.TrimPrefix(ref, prefix), nil
}

// Save uploads p under the caller-supplied object key.
func (b *bucket) Save(ctx context.Context, key string, p []byte, contentType string) (string, error) {
	_, err := b.client.PutObject(ctx, b.bucketName, key, bytes.NewReader(p), int64(len(p)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return Scheme + ":" + b.bucketName + "/" + key, nil
}

func (b *bucket) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := b.key(ref)
	if err != nil {
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, b.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return ioutil.ReadAll(obj)
}

func (b *bucket) ContentType(ctx context.Context, ref string) (string, bool, error) {
	key, err := b.key(ref)
	if err != nil {
		return "", false, err
	}
	info, err := b.client.StatObject(ctx, b.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return "", false, err
	}
	return info.ContentType, info.ContentType != "", nil
}

func (b *bucket) Close() error { return nil }
