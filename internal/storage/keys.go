package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const maxNameLen = 64

// NewKey builds "<prefix>/<unix millis>-<8 hex>-<name>". The random part keeps
// two uploads of the same file name within one millisecond apart.
func NewKey(prefix, filename string, now time.Time) string {
	name := sanitizeName(filename)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	key := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), suffix, name)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// sanitizeName keeps the base name, maps anything outside [A-Za-z0-9._-] to
// '_' and caps the length. Empty names become "image".
func sanitizeName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "image"
	}
	if len(name) > maxNameLen {
		name = name[len(name)-maxNameLen:]
	}
	return name
}

// publicObjectURL returns publicURL/key when a public base is configured,
// otherwise scheme://endpoint/bucket/key.
func publicObjectURL(publicURL string, useSSL bool, endpoint, bucket, key string) string {
	if publicURL != "" {
		return strings.TrimSuffix(publicURL, "/") + "/" + key
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, bucket, key)
}

// publicReadPolicy allows anonymous GetObject on every object in bucket.
func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
