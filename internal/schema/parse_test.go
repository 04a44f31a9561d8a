package schema

import (
	"strings"
	"testing"
)

func TestExtractFinalBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single block",
			in:   "reasoning here <final>[{\"unit_id\":\"U1\"}]</final>",
			want: "[{\"unit_id\":\"U1\"}]",
		},
		{
			name: "last block wins",
			in:   "<final>draft</final> revised answer <final>final answer</final>",
			want: "final answer",
		},
		{
			name: "case insensitive tags",
			in:   "<FINAL>{\"a\":1}</FINAL>",
			want: "{\"a\":1}",
		},
		{
			name: "multiline content trimmed",
			in:   "<final>\n[\n  1,\n  2\n]\n</final>",
			want: "[\n  1,\n  2\n]",
		},
		{
			name: "no block",
			in:   "the model never closed its answer",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFinalBlock(tt.in); got != tt.want {
				t.Errorf("ExtractFinalBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	if got := StripCodeFences(fenced); strings.TrimSpace(got) != "{\"a\": 1}" {
		t.Errorf("StripCodeFences() = %q", got)
	}
	plain := "{\"a\": 1}"
	if got := StripCodeFences(plain); got != plain {
		t.Errorf("StripCodeFences() altered unfenced input: %q", got)
	}
}

func TestParseModelOutput(t *testing.T) {
	t.Run("valid array", func(t *testing.T) {
		out := ParseModelOutput("analysis...\n<final>[{\"unit_id\": \"U1\"}]</final>")
		if out.ParseError != "" {
			t.Fatalf("unexpected parse error: %s", out.ParseError)
		}
		list, ok := out.Value.([]interface{})
		if !ok || len(list) != 1 {
			t.Fatalf("expected one-element array, got %#v", out.Value)
		}
	})

	t.Run("fenced object", func(t *testing.T) {
		out := ParseModelOutput("<final>```json\n{\"unit_id\": \"U1\"}\n```</final>")
		if out.ParseError != "" {
			t.Fatalf("unexpected parse error: %s", out.ParseError)
		}
		if _, ok := out.Value.(map[string]interface{}); !ok {
			t.Fatalf("expected object, got %#v", out.Value)
		}
	})

	t.Run("missing final block", func(t *testing.T) {
		out := ParseModelOutput("no tags at all")
		if out.ParseError != "missing_final_block" {
			t.Errorf("expected missing_final_block, got %q", out.ParseError)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		out := ParseModelOutput("<final>{not json}</final>")
		if !strings.HasPrefix(out.ParseError, "json_parse_error") {
			t.Errorf("expected json_parse_error, got %q", out.ParseError)
		}
		if out.FinalText == "" {
			t.Error("expected the raw final text to be preserved")
		}
	})
}
