package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// DirEnv overrides the config directory.
const DirEnv = "XPOST_DIR"

// ResolveDir picks the config directory: explicit flag, then $XPOST_DIR, then
// ~/.xpost, then ./.xpost when the home directory is unusable. The directory
// is created.
func ResolveDir(flag string) (string, error) {
	for _, d := range []string{flag, os.Getenv(DirEnv)} {
		if d = strings.TrimSpace(d); d != "" {
			return d, os.MkdirAll(d, 0o700)
		}
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		d := filepath.Join(home, ".xpost")
		if err := os.MkdirAll(d, 0o700); err == nil && writable(d) {
			return d, nil
		}
	}
	d, err := filepath.Abs(".xpost")
	if err != nil {
		return "", err
	}
	return d, os.MkdirAll(d, 0o700)
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

// Load reads config.yaml (or config.json) from dir and resolves it. A missing
// file yields the defaults.
func Load(dir string) (Settings, error) {
	f, path, err := ReadFile(dir)
	if err != nil {
		return Settings{}, err
	}
	s, err := f.Resolve(dir)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadFile strictly decodes the first config file present in dir.
func ReadFile(dir string) (File, string, error) {
	for _, name := range []string{ConfigYAML, "config.yml", ConfigJSON} {
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return File{}, path, err
		}
		f, err := Parse(path, b)
		return f, path, err
	}
	return File{}, "", nil
}

// Parse decodes YAML or JSON (chosen by extension) rejecting unknown keys.
func Parse(path string, data []byte) (File, error) {
	jb, err := toJSON(path, data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	var f File
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("%s: trailing data", path)
		}
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// toJSON re-encodes YAML as JSON so both formats share the strict decoder.
func toJSON(path string, data []byte) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(stringKeys(v))
}

func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
