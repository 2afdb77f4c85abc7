package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadError is a missing or malformed agent config. It is fatal at boot.
type LoadError struct {
	Agent string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("agent config %q (%s): %v", e.Agent, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type ContextLimits struct {
	MaxInputTokens  int `yaml:"max_input_tokens" json:"max_input_tokens"`
	MaxOutputTokens int `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxTotalTokens  int `yaml:"max_total_tokens" json:"max_total_tokens"`
}

type AgentMetadata struct {
	Version     string `yaml:"version" json:"version"`
	Epic        string `yaml:"epic" json:"epic"`
	CreatedAt   string `yaml:"created_at" json:"created_at"`
	Description string `yaml:"description" json:"description"`
}

// AgentConfig is config/agents/<agent>.yaml.
type AgentConfig struct {
	Name          string        `yaml:"-" json:"name"`
	Prompt        string        `yaml:"prompt" json:"prompt"`
	Tags          []string      `yaml:"tags" json:"tags"`
	ContextLimits ContextLimits `yaml:"context_limits" json:"context_limits"`
	Model         string        `yaml:"model" json:"model"`
	Temperature   *float64      `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Metadata      AgentMetadata `yaml:"metadata" json:"metadata"`
}

// TemperatureOr returns the configured temperature or def.
func (c *AgentConfig) TemperatureOr(def float64) float64 {
	if c == nil || c.Temperature == nil {
		return def
	}
	return *c.Temperature
}

// Validate checks mandatory keys and limit consistency.
func (c *AgentConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	if c.Tags == nil {
		problems = append(problems, "tags is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model is required")
	}
	l := c.ContextLimits
	if l.MaxInputTokens <= 0 {
		problems = append(problems, "context_limits.max_input_tokens must be a positive integer")
	}
	if l.MaxOutputTokens <= 0 {
		problems = append(problems, "context_limits.max_output_tokens must be a positive integer")
	}
	if l.MaxTotalTokens <= 0 {
		problems = append(problems, "context_limits.max_total_tokens must be a positive integer")
	}
	if l.MaxInputTokens > 0 && l.MaxOutputTokens > 0 && l.MaxTotalTokens < l.MaxInputTokens+l.MaxOutputTokens {
		problems = append(problems, fmt.Sprintf("context_limits.max_total_tokens (%d) < max_input_tokens + max_output_tokens (%d)",
			l.MaxTotalTokens, l.MaxInputTokens+l.MaxOutputTokens))
	}
	meta := map[string]string{
		"version":     c.Metadata.Version,
		"epic":        c.Metadata.Epic,
		"created_at":  c.Metadata.CreatedAt,
		"description": c.Metadata.Description,
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(meta[k]) == "" {
			problems = append(problems, "metadata."+k+" must be a non-empty string")
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// LoadAgentConfig reads and validates dir/<name>.yaml.
func LoadAgentConfig(dir, name string) (*AgentConfig, error) {
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Agent: name, Path: path, Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg AgentConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, &LoadError{Agent: name, Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	cfg.Name = name
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Agent: name, Path: path, Err: err}
	}
	return &cfg, nil
}

// AgentConfigs is the validated set loaded at boot.
type AgentConfigs map[string]*AgentConfig

// Get returns the config for name, or nil.
func (a AgentConfigs) Get(name string) *AgentConfig {
	return a[name]
}

// Names lists the loaded agents in sorted order.
func (a AgentConfigs) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadAgentConfigs loads every named agent and stops at the first failure.
func LoadAgentConfigs(dir string, names ...string) (AgentConfigs, error) {
	out := make(AgentConfigs, len(names))
	for _, name := range names {
		cfg, err := LoadAgentConfig(dir, name)
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}
