package fileblob

import (
	"encoding/json"
	"os"
)

const attrsExt = ".attrs"

// xattrs stores the extended attributes fileblob keeps alongside a blob
// file, in the style of filesystem extended attributes. See
// https://www.freedesktop.org/wiki/CommonExtendedAttributes.
type xattrs struct {
	ContentType string `json:"user.content_type"`
	MD5         []byte `json:"md5"`
}

// setAttrs creates a "path.attrs" sidecar file in JSON format.
func setAttrs(path string, xa xattrs) error {
	f, err := os.Create(path + attrsExt)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(xa); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// getAttrs reads the "path.attrs" sidecar file. A missing sidecar (a blob
// written by something other than this adapter) is not an error; it
// yields the generic default content type.
func getAttrs(path string) (xattrs, error) {
	f, err := os.Open(path + attrsExt)
	if err != nil {
		if os.IsNotExist(err) {
			return xattrs{ContentType: "application/octet-stream"}, nil
		}
		return xattrs{}, err
	}
	defer f.Close()
	xa := new(xattrs)
	if err := json.NewDecoder(f).Decode(xa); err != nil {
		return xattrs{}, err
	}
	return *xa, nil
}
