// Package llm resolves model aliases to OpenAI-compatible endpoints and
// wraps chat completion calls with rate limiting and retries.
package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RegistryEnv names the environment variable pointing at the model
// registry file when no explicit path is configured.
const RegistryEnv = "NORMBENCH_MODEL_CONFIG"

// ModelSpec is one registry entry. Credentials are referenced indirectly
// through environment variable names so registry files can be committed.
type ModelSpec struct {
	Model      string `json:"model"`
	APIBase    string `json:"api_base,omitempty"`
	APIBaseEnv string `json:"api_base_env,omitempty"`
	APIKeyEnv  string `json:"api_key_env,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
}

// ResolvedModel is a ModelSpec with its environment indirections applied
type ResolvedModel struct {
	Alias     string
	Model     string
	APIBase   string
	APIKey    string
	MaxTokens int
}

// Registry maps aliases to model specs
type Registry struct {
	specs map[string]ModelSpec
}

// builtinSpecs covers the common OpenAI-compatible endpoints so small runs
// work without a registry file.
var builtinSpecs = map[string]ModelSpec{
	"gpt-4o": {
		Model:     "gpt-4o",
		APIKeyEnv: "OPENAI_API_KEY",
	},
	"gpt-4o-mini": {
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
	},
	"deepseek-chat": {
		Model:     "deepseek-chat",
		APIBase:   "https://api.deepseek.com/v1",
		APIKeyEnv: "DEEPSEEK_API_KEY",
	},
	"qwen-max": {
		Model:     "qwen-max",
		APIBase:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
		APIKeyEnv: "DASHSCOPE_API_KEY",
	},
}

// LoadRegistry reads a registry file. An empty path falls back to the
// NORMBENCH_MODEL_CONFIG environment variable, and then to the builtin
// entries. File entries shadow builtins under the same alias.
func LoadRegistry(path string) (*Registry, error) {
	specs := make(map[string]ModelSpec, len(builtinSpecs))
	for alias, spec := range builtinSpecs {
		specs[alias] = spec
	}

	if path == "" {
		path = os.Getenv(RegistryEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read model registry: %w", err)
		}
		var fromFile map[string]ModelSpec
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse model registry %s: %w", path, err)
		}
		for alias, spec := range fromFile {
			specs[alias] = spec
		}
	}
	return &Registry{specs: specs}, nil
}

// Aliases returns the registered aliases in sorted order
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.specs))
	for alias := range r.specs {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Resolve looks up an alias and applies its environment indirections. A
// missing API key is an error here rather than a mid-run 401.
func (r *Registry) Resolve(alias string) (*ResolvedModel, error) {
	spec, ok := r.specs[alias]
	if !ok {
		return nil, fmt.Errorf("unknown model alias %q (known: %v)", alias, r.Aliases())
	}
	resolved := &ResolvedModel{
		Alias:     alias,
		Model:     spec.Model,
		APIBase:   spec.APIBase,
		MaxTokens: spec.MaxTokens,
	}
	if resolved.Model == "" {
		resolved.Model = alias
	}
	if spec.APIBaseEnv != "" {
		if base := os.Getenv(spec.APIBaseEnv); base != "" {
			resolved.APIBase = base
		}
	}
	if spec.APIKeyEnv != "" {
		resolved.APIKey = os.Getenv(spec.APIKeyEnv)
	}
	if resolved.APIKey == "" {
		envName := spec.APIKeyEnv
		if envName == "" {
			envName = "OPENAI_API_KEY"
			resolved.APIKey = os.Getenv(envName)
		}
		if resolved.APIKey == "" {
			return nil, fmt.Errorf("model alias %q: API key env %s is not set", alias, envName)
		}
	}
	return resolved, nil
}
