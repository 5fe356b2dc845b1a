package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the assistant's base identity, loaded from the workspace
// persona file. It forms the floor of every prompt and is never
// budget-checked against the ledger.
type Persona struct {
	Name   string   `yaml:"name"`
	Role   string   `yaml:"role"`
	Style  string   `yaml:"style,omitempty"`
	Skills []string `yaml:"skills,omitempty"`
	Rules  []string `yaml:"rules,omitempty"`
}

// DefaultPersona is used when no persona file exists yet.
func DefaultPersona() Persona {
	return Persona{
		Name: "Nova",
		Role: "a personal AI assistant that answers concisely and acts on the user's behalf",
		Style: "warm, direct, no filler",
		Skills: []string{
			"answering questions with available context",
			"controlling music and media playback",
			"building scheduled workflows on request",
			"remembering durable facts the user shares",
		},
	}
}

// LoadPersona reads .nova/persona.yaml from the workspace, falling back to
// the default persona when the file is absent.
func LoadPersona(workspace string) (Persona, error) {
	path := filepath.Join(workspace, ".nova", "persona.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPersona(), nil
		}
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona file: %w", err)
	}
	if p.Name == "" {
		p.Name = DefaultPersona().Name
	}
	if p.Role == "" {
		p.Role = DefaultPersona().Role
	}
	return p, nil
}

// Render produces the persona/skills base section text.
func (p Persona) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", p.Name, p.Role)
	if p.Style != "" {
		fmt.Fprintf(&b, "Style: %s.\n", p.Style)
	}
	if len(p.Skills) > 0 {
		b.WriteString("You can: ")
		b.WriteString(strings.Join(p.Skills, "; "))
		b.WriteString(".\n")
	}
	for _, r := range p.Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}
