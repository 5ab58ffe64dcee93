package content

import (
	"errors"
	"fmt"
	"os"

	"github.com/quizchest/quizchest/go/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoQuestions indicates a bank with no usable questions.
	ErrNoQuestions = errors.New("question bank has no questions")
)

// Bank is an ordered question bank plus an optional final round. The
// engine consumes only the length and per-question durations; everything
// else is presentation handled by the editor and renderer.
type Bank struct {
	Name      string                `yaml:"name"`
	Questions []models.Question     `yaml:"questions"`
	Final     *models.FinalQuestion `yaml:"final,omitempty"`
}

// LoadBank reads and validates a question bank YAML file.
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}

	var bank Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	if err := bank.Validate(); err != nil {
		return nil, err
	}
	return &bank, nil
}

// Validate checks the bank for entries the engine cannot run.
func (b *Bank) Validate() error {
	if len(b.Questions) == 0 {
		return ErrNoQuestions
	}
	for i, q := range b.Questions {
		if q.DurationSec <= 0 {
			return fmt.Errorf("question %d: duration must be positive, got %d", i, q.DurationSec)
		}
	}
	return nil
}

// TotalQuestions returns the largest multiple of teamCount that does not
// exceed contentLen, so every team gets the same number of turns. A zero
// result means the session must not start.
func TotalQuestions(contentLen, teamCount int) int {
	if teamCount <= 0 {
		return 0
	}
	return (contentLen / teamCount) * teamCount
}
