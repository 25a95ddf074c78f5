// Package onboarding serves the static first-contact content: a terms
// notice and usage instructions, delivered verbatim.
package onboarding

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	defaultTerms = "By messaging this service you agree that your questions are " +
		"processed by an AI assistant and that answers to common questions may be reused."
	defaultInstructions = "Send any question as a plain text message and the " +
		"assistant will reply here. One question per message works best."
)

// Content holds the two onboarding texts.
type Content struct {
	Terms        string
	Instructions string
}

// Load reads both texts from disk. A missing file falls back to the
// embedded default with a warning; any other read error is fatal.
func Load(log *slog.Logger, termsPath, instructionsPath string) (Content, error) {
	if log == nil {
		log = slog.Default()
	}
	terms, err := readOrDefault(log, termsPath, defaultTerms)
	if err != nil {
		return Content{}, fmt.Errorf("load terms: %w", err)
	}
	instructions, err := readOrDefault(log, instructionsPath, defaultInstructions)
	if err != nil {
		return Content{}, fmt.Errorf("load instructions: %w", err)
	}
	return Content{Terms: terms, Instructions: instructions}, nil
}

func readOrDefault(log *slog.Logger, path, fallback string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("onboarding file missing, using built-in text", slog.String("path", path))
			return fallback, nil
		}
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback, nil
	}
	return text, nil
}
