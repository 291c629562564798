// SPDX-License-Identifier: MIT

// Package dialogue implements the scripted per-user conversation state
// machine: a static step graph advanced by inbound text, guarded by an
// inactivity watchdog.
package dialogue

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any input that has no exact transition, enabling
// free-text steps that unconditionally advance.
const Wildcard = "*"

//go:embed flow.yaml
var defaultFlowYAML []byte

// Step is one node of the dialogue graph: a message plus a mapping from
// recognized inputs to next steps. A step with no transitions is terminal.
type Step struct {
	Message string            `yaml:"message"`
	Next    map[string]string `yaml:"next"`
}

// Flow is the immutable dialogue graph. It is validated once at load time
// so conversations never hit a dangling transition mid-dialogue.
type Flow struct {
	// Start is the step every new conversation begins at.
	Start string `yaml:"start"`
	// Closing names the terminal step whose message closes a conversation
	// immediately, with no follow-up acknowledgement.
	Closing string `yaml:"closing"`
	// InvalidNotice prefixes the current step's message when input matches
	// no transition.
	InvalidNotice string `yaml:"invalid_notice"`
	// InactivityNotice is sent when the watchdog drops a conversation.
	InactivityNotice string `yaml:"inactivity_notice"`
	// ClosingAck is the delayed acknowledgement after a non-closing leaf.
	ClosingAck string `yaml:"closing_ack"`

	Steps map[string]Step `yaml:"steps"`
}

// Load parses and validates a flow document.
func Load(data []byte) (*Flow, error) {
	var f Flow
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("dialogue: parse flow: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and validates a flow document from disk.
func LoadFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dialogue: read flow file: %w", err)
	}
	return Load(data)
}

// Default returns the embedded flow. It panics only if the embedded
// document is itself malformed, which the package tests rule out.
func Default() *Flow {
	f, err := Load(defaultFlowYAML)
	if err != nil {
		panic(fmt.Sprintf("dialogue: embedded flow invalid: %v", err))
	}
	return f
}

// Validate fails fast on a malformed graph: the start and closing steps
// must exist and every transition target must resolve.
func (f *Flow) Validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("dialogue: flow has no steps")
	}
	if f.Start == "" {
		return fmt.Errorf("dialogue: flow has no start step")
	}
	if _, ok := f.Steps[f.Start]; !ok {
		return fmt.Errorf("dialogue: start step %q not defined", f.Start)
	}
	if f.Closing == "" {
		return fmt.Errorf("dialogue: flow has no closing step")
	}
	closing, ok := f.Steps[f.Closing]
	if !ok {
		return fmt.Errorf("dialogue: closing step %q not defined", f.Closing)
	}
	if len(closing.Next) != 0 {
		return fmt.Errorf("dialogue: closing step %q must be terminal", f.Closing)
	}
	for id, step := range f.Steps {
		for input, target := range step.Next {
			if _, ok := f.Steps[target]; !ok {
				return fmt.Errorf("dialogue: step %q transition %q targets undefined step %q", id, input, target)
			}
		}
	}
	return nil
}
