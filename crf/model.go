package crf

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveModel serializes the model to JSON.
func SaveModel(model *Model, path string) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a model from JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalModel(data)
}

// MarshalModel serializes the model to JSON bytes.
func MarshalModel(model *Model) ([]byte, error) {
	return json.Marshal(model)
}

// UnmarshalModel deserializes a model from JSON bytes and validates its
// parameter dimensions.
func UnmarshalModel(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}

// Validate checks the model parameter dimensions for consistency.
func (m *Model) Validate() error {
	T, F := m.NumTags, m.InputSize
	if T <= 0 || F <= 0 {
		return fmt.Errorf("crf: model: invalid dimensions %dx%d", T, F)
	}
	if len(m.Start) != T || len(m.End) != T || len(m.Bias) != T {
		return fmt.Errorf("crf: model: boundary parameter lengths %d/%d/%d, want %d",
			len(m.Start), len(m.End), len(m.Bias), T)
	}
	if len(m.Trans) != T {
		return fmt.Errorf("crf: model: %d transition rows, want %d", len(m.Trans), T)
	}
	for k := range m.Trans {
		if len(m.Trans[k]) != T {
			return fmt.Errorf("crf: model: transition row %d has %d entries, want %d", k, len(m.Trans[k]), T)
		}
	}
	if len(m.Weights) != T*F {
		return fmt.Errorf("crf: model: %d projection weights, want %d", len(m.Weights), T*F)
	}
	return nil
}
