package models

// Question is one entry of the question bank. The engine only consumes
// DurationSec; prompt, answer and link are rendered elsewhere.
type Question struct {
	Prompt      string `json:"prompt" yaml:"prompt"`
	Answer      string `json:"answer" yaml:"answer"`
	DurationSec int    `json:"duration_sec" yaml:"duration_sec"`
	Link        string `json:"link,omitempty" yaml:"link,omitempty"`
}

// FinalQuestion is the optional final-round record.
type FinalQuestion struct {
	Prompt string `json:"prompt" yaml:"prompt"`
	Answer string `json:"answer" yaml:"answer"`
}
