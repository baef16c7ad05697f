// Package protocol loads the interview protocol: the instruction text sent
// to the model on every request, the sentinel codes the model uses to end a
// session, and the generation parameters.
package protocol

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Class tells downstream reporting why a session ended.
type Class string

const (
	ClassProblematic Class = "problematic-content"
	ClassCompleted   Class = "normal-completion"
	ClassQuit        Class = "quit"
)

// Sentinel is a code the model emits instead of conversational text.
type Sentinel struct {
	Code    string `yaml:"code"`
	Message string `yaml:"message"`
	Class   Class  `yaml:"class"`
}

// Definition is read-only after Load.
type Definition struct {
	Name                string     `yaml:"name"`
	Model               string     `yaml:"model"`
	MaxOutputTokens     int        `yaml:"max_output_tokens"`
	Temperature         *float64   `yaml:"temperature"`
	SingleQuestion      bool       `yaml:"single_question"`
	SeedMessage         string     `yaml:"seed_message"`
	SummaryMarkers      []string   `yaml:"summary_markers"`
	Outline             string     `yaml:"outline"`
	GeneralInstructions string     `yaml:"general_instructions"`
	CodesInstructions   string     `yaml:"codes_instructions"`
	Sentinels           []Sentinel `yaml:"sentinels"`
}

// Default returns the embedded protocol.
func Default() (*Definition, error) {
	return Parse(defaultYAML)
}

// Load reads the protocol at path, or the embedded default when path is empty.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML protocol.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse protocol: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks every field the session depends on.
func (d *Definition) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Outline) == "" {
		errs = append(errs, errors.New("protocol: outline is required"))
	}
	if d.Model == "" {
		errs = append(errs, errors.New("protocol: model is required"))
	}
	if d.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("protocol: max_output_tokens must be positive"))
	}
	if len(d.Sentinels) == 0 {
		errs = append(errs, errors.New("protocol: at least one sentinel is required"))
	}
	seen := make(map[string]bool)
	for i, s := range d.Sentinels {
		switch {
		case s.Code == "":
			errs = append(errs, fmt.Errorf("protocol: sentinel %d has no code", i))
		case s.Message == "":
			errs = append(errs, fmt.Errorf("protocol: sentinel %q has no message", s.Code))
		case s.Class != ClassProblematic && s.Class != ClassCompleted:
			errs = append(errs, fmt.Errorf("protocol: sentinel %q has unknown class %q", s.Code, s.Class))
		case seen[s.Code]:
			errs = append(errs, fmt.Errorf("protocol: duplicate sentinel %q", s.Code))
		}
		seen[s.Code] = true
	}
	return errors.Join(errs...)
}

// Instructions is the full system text sent with every request.
func (d *Definition) Instructions() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Outline, d.GeneralInstructions, d.CodesInstructions} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Sentinel looks up a code.
func (d *Definition) Sentinel(code string) (Sentinel, bool) {
	for _, s := range d.Sentinels {
		if s.Code == code {
			return s, true
		}
	}
	return Sentinel{}, false
}
