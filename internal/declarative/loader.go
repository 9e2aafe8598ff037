package declarative

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadDirectory reads all YAML files in dir and returns the desired state.
// Pipeline documents must be named after their file.
func LoadDirectory(dir string) (*DesiredState, error) {
	return LoadDirectoryWithOptions(dir, LoadOptions{})
}

// LoadDirectoryWithOptions reads all YAML files in dir using caller-provided
// loading options. Files are read in name order.
func LoadDirectoryWithOptions(dir string, opts LoadOptions) (*DesiredState, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config directory: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	state := &DesiredState{}
	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := loadInto(state, path, opts, true); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// LoadFile reads one YAML document into a fresh desired state.
func LoadFile(path string, opts LoadOptions) (*DesiredState, error) {
	state := &DesiredState{}
	if err := loadInto(state, path, opts, false); err != nil {
		return nil, err
	}
	return state, nil
}

// Load reads path as a directory or a single file.
func Load(path string, opts LoadOptions) (*DesiredState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDirectoryWithOptions(path, opts)
	}
	return LoadFile(path, opts)
}

func loadInto(state *DesiredState, path string, opts LoadOptions, matchFileName bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.APIVersion != SupportedAPIVersion {
		return fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", path, doc.APIVersion, SupportedAPIVersion)
	}

	switch doc.Kind {
	case KindNamePipeline:
		var plDoc PipelineDoc
		if err := decodeYAML(data, &plDoc, opts); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if plDoc.Metadata.Name == "" {
			return fmt.Errorf("%s: metadata.name is required", path)
		}
		if matchFileName {
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if plDoc.Metadata.Name != base {
				return fmt.Errorf("%s: metadata.name %q does not match file name %q", path, plDoc.Metadata.Name, base)
			}
		}
		state.Pipelines = append(state.Pipelines, PipelineResource{
			Name:     plDoc.Metadata.Name,
			FilePath: path,
			Spec:     plDoc.Spec,
		})
	case KindNameStorageCredentialList:
		var credDoc StorageCredentialListDoc
		if err := decodeYAML(data, &credDoc, opts); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		state.Credentials = append(state.Credentials, credDoc.Credentials...)
	default:
		return fmt.Errorf("%s: unexpected kind %q", path, doc.Kind)
	}
	return nil
}

// decodeYAML unmarshals data into target, rejecting unknown fields unless
// opts allows them.
func decodeYAML(data []byte, target any, opts LoadOptions) error {
	if opts.AllowUnknownFields {
		return yaml.Unmarshal(data, target)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(target)
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
