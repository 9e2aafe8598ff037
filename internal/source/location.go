// Package source resolves and probes object-store locations that staging
// tasks copy from.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported location schemes.
const (
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
	SchemeAzure = "az"
	SchemeFile  = "file"
)

// Location is a parsed source location.
type Location struct {
	Raw    string
	Scheme string
	Bucket string // bucket or container; empty for files
	Prefix string // object key prefix, or the filesystem path for files
}

// ParseLocation parses s3://bucket/prefix, gs://bucket/prefix,
// az://container/prefix (also azure://), file:///path and bare paths.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("location is required")
	}
	if !strings.Contains(raw, "://") {
		return Location{Raw: raw, Scheme: SchemeFile, Prefix: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}

	loc := Location{Raw: raw, Scheme: strings.ToLower(u.Scheme)}
	switch loc.Scheme {
	case SchemeFile:
		loc.Prefix = u.Path
		if loc.Prefix == "" {
			return Location{}, fmt.Errorf("empty path in %q", raw)
		}
		return loc, nil
	case "azure":
		loc.Scheme = SchemeAzure
	case SchemeS3, SchemeGCS, SchemeAzure:
	default:
		return Location{}, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}

	loc.Bucket = u.Host
	if loc.Bucket == "" {
		return Location{}, fmt.Errorf("empty bucket in %q", raw)
	}
	loc.Prefix = strings.TrimPrefix(u.Path, "/")
	return loc, nil
}
