package motion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/teslashibe/go-motionbridge/internal/validation"
)

// ParseDocument decodes and validates a motion document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMotion, err)
	}
	if verr := validation.ValidateStruct(&doc); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMotion, verr.Error())
	}
	doc.Duration = float64(min(len(doc.FL), len(doc.FR), len(doc.RL), len(doc.RR))) / Frequency
	return &doc, nil
}

// LoadFromFile loads a motion document from disk. The document name
// defaults to the file stem when the file omits it.
func LoadFromFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read motion file: %w", err)
	}

	// Patch in the stem so older assets without a name still validate.
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err == nil && head.Name == "" {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err == nil {
			raw["name"] = strings.TrimSuffix(filepath.Base(path), ".json")
			if patched, err := json.Marshal(raw); err == nil {
				data = patched
			}
		}
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return doc, nil
}

// SaveToFile writes a motion document as indented JSON.
func SaveToFile(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode motion: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write motion file: %w", err)
	}
	return nil
}
