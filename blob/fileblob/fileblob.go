// Package fileblob implements a blob store adapter on the local
// filesystem. References take the form "fs:<key>"; content type is kept
// in a JSON sidecar file alongside each blob.
package fileblob

import (
	"context"
	"crypto/md5"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetpx/ephimg/blob"
	"github.com/fleetpx/ephimg/blob/driver"
	"github.com/fleetpx/ephimg/verr"
)

// Scheme identifies this adapter in reference strings and config.
const Scheme = "fs"

var _ driver.Bucket = (*bucket)(nil)

type bucket struct {
	dir string
}

// OpenBucket creates a *blob.Bucket backed by the filesystem, rooted at
// dir, which must already exist.
func OpenBucket(dir string) (*blob.Bucket, error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fileblob: %s is not a directory", dir)
	}
	return blob.NewBucket(&bucket{dir: dir}), nil
}

func (b *bucket) ErrorCode(err error) verr.ErrorCode {
	if os.IsNotExist(err) {
		return verr.NotFound
	}
	return verr.Unknown
}

func (b *bucket) ProviderName() string { return Scheme }

func (b *bucket) path(ref string) (string, error) {
	prefix := Scheme + ":"
	if !strings.HasPrefix(ref, prefix) {
		return "", fmt.Errorf("fileblob: malformed reference %q", ref)
	}
	key := strings.TrimPrefix(ref, prefix)
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("fileblob: malformed reference %q", ref)
	}
	return filepath.Join(b.dir, key), nil
}

// Save writes p to a file named by key and returns its reference. key is
// not validated against content, so callers saving the same bytes twice
// under different keys get two distinct references.
func (b *bucket) Save(ctx context.Context, key string, p []byte, contentType string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("fileblob: malformed key %q", key)
	}
	path := filepath.Join(b.dir, key)

	f, err := ioutil.TempFile(b.dir, "fileblob-tmp-")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(p); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	sum := md5.Sum(p)
	if err := setAttrs(path, xattrs{ContentType: contentType, MD5: sum[:]}); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := ctx.Err(); err != nil {
		os.Remove(f.Name())
		os.Remove(path + attrsExt)
		return "", err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		os.Remove(path + attrsExt)
		return "", err
	}
	return Scheme + ":" + key, nil
}

func (b *bucket) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := b.path(ref)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadFile(path)
}

func (b *bucket) ContentType(ctx context.Context, ref string) (string, bool, error) {
	path, err := b.path(ref)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(path); err != nil {
		return "", false, err
	}
	xa, err := getAttrs(path)
	if err != nil {
		return "", false, err
	}
	return xa.ContentType, xa.ContentType != "", nil
}

func (b *bucket) Close() error { return nil }
