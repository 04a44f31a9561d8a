package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRegistry_Builtins(t *testing.T) {
	t.Setenv(RegistryEnv, "")
	r, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	aliases := r.Aliases()
	for _, want := range []string{"deepseek-chat", "gpt-4o", "gpt-4o-mini", "qwen-max"} {
		found := false
		for _, a := range aliases {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Errorf("builtin alias %q missing from %v", want, aliases)
		}
	}
}

func TestLoadRegistry_FileShadowsBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	content := `{
	  "gpt-4o": {"model": "gpt-4o-2024-11-20", "api_key_env": "MY_KEY"},
	  "local": {"model": "qwen2.5-7b", "api_base": "http://127.0.0.1:8000/v1", "api_key_env": "LOCAL_KEY"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	t.Setenv("MY_KEY", "sk-test")
	m, err := r.Resolve("gpt-4o")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Model != "gpt-4o-2024-11-20" {
		t.Errorf("file entry did not shadow builtin: %q", m.Model)
	}

	t.Setenv("LOCAL_KEY", "anything")
	m, err = r.Resolve("local")
	if err != nil {
		t.Fatalf("Resolve local: %v", err)
	}
	if m.APIBase != "http://127.0.0.1:8000/v1" {
		t.Errorf("api base = %q", m.APIBase)
	}
}

func TestResolve_EnvIndirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	content := `{"proxy": {"model": "m", "api_base_env": "PROXY_BASE", "api_key_env": "PROXY_KEY"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROXY_BASE", "https://gw.example.com/v1")
	t.Setenv("PROXY_KEY", "k")
	m, err := r.Resolve("proxy")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.APIBase != "https://gw.example.com/v1" || m.APIKey != "k" {
		t.Errorf("resolved = %+v", m)
	}
}

func TestResolve_UnknownAlias(t *testing.T) {
	r, err := LoadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("no-such-model"); err == nil {
		t.Fatal("unknown alias must fail")
	} else if !strings.Contains(err.Error(), "unknown model alias") {
		t.Errorf("error = %v", err)
	}
}

func TestResolve_MissingKey(t *testing.T) {
	r, err := LoadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEEPSEEK_API_KEY", "")
	if _, err := r.Resolve("deepseek-chat"); err == nil {
		t.Fatal("missing key must fail at resolve time")
	}
}

func TestLoadRegistry_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err == nil {
		t.Fatal("malformed registry must fail")
	}
}
