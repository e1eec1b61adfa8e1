package models

// Example pairs one raw pipeline input with its gold-standard expected
// fields, as loaded from a training or validation dataset file.
type Example struct {
	Input    map[string]any `json:"input" yaml:"input"`
	Expected map[string]any `json:"expected" yaml:"expected"`
}
