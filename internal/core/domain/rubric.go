package domain

// Rubric is a named evaluation prompt with dashboard metadata.
type Rubric struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Category    string `json:"category,omitempty" yaml:"category"`
	IsActive    bool   `json:"is_active" yaml:"is_active"`
	SortOrder   int    `json:"sort_order" yaml:"sort_order"`
	Prompt      string `json:"-" yaml:"prompt"`
}
