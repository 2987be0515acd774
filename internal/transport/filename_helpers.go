package transport

import (
	"net/url"
	"path/filepath"
)

func parseURLQuery(rawurl string) (url.Values, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	return u.Query(), nil
}

func pathFilename(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	return filepath.Base(u.Path)
}

func hasNoExt(name string) bool {
	return filepath.Ext(name) == ""
}
