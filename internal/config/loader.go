package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// LoadRaw reads a config file into a merged raw map. `$include` entries are
// resolved relative to the including file, depth first, with cycle
// detection; the including file's own keys win on conflict.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadMerged(path, map[string]bool{})
}

func loadMerged(path string, seen map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("config include cycle at %s", abs)
	}
	seen[abs] = true
	defer delete(seen, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	raw, err := parseRaw([]byte(os.ExpandEnv(string(data))), abs)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}

	merged := map[string]any{}
	for _, inc := range popIncludes(raw) {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := loadMerged(inc, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, sub)
	}
	return mergeMaps(merged, raw), nil
}

// parseRaw decodes by extension: .json/.json5 via json5, everything else as
// a single YAML document.
func parseRaw(data []byte, pathHint string) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("expected a single document")
		}
	}
	return raw, nil
}

func popIncludes(raw map[string]any) []string {
	val, ok := raw[includeKey]
	if !ok {
		val, ok = raw["include"]
		if !ok {
			return nil
		}
		delete(raw, "include")
	} else {
		delete(raw, includeKey)
	}

	switch typed := val.(type) {
	case string:
		return []string{typed}
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
