package utils

import (
	"testing"
)

func TestParseModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, got map[string]interface{})
	}{
		{
			name:  "clean invocation arguments",
			input: `{"query": "1 bedroom", "max_price": 3500, "parking": true}`,
			check: func(t *testing.T, got map[string]interface{}) {
				if got["query"] != "1 bedroom" || got["max_price"] != float64(3500) || got["parking"] != true {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "markdown fenced",
			input: "```json\n{\"listing_id\": \"listing_042\"}\n```",
			check: func(t *testing.T, got map[string]interface{}) {
				if got["listing_id"] != "listing_042" {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "bare fence without language tag",
			input: "```\n{\"sort_by\": \"price_asc\"}\n```",
			check: func(t *testing.T, got map[string]interface{}) {
				if got["sort_by"] != "price_asc" {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "surrounded by prose",
			input: `Here are the search parameters: {"neighborhood": "SoMa"} as requested.`,
			check: func(t *testing.T, got map[string]interface{}) {
				if got["neighborhood"] != "SoMa" {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "trailing comma and unquoted keys",
			input: `{query: "loft", max_price: 3000,}`,
			check: func(t *testing.T, got map[string]interface{}) {
				if got["query"] != "loft" || got["max_price"] != float64(3000) {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "byte order mark with unquoted keys",
			input: "\ufeff{query: \"loft\"}",
			check: func(t *testing.T, got map[string]interface{}) {
				if got["query"] != "loft" {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:  "braces inside string values",
			input: `{"description": "units like {this} are fine", "beds": 2}`,
			check: func(t *testing.T, got map[string]interface{}) {
				if got["beds"] != float64(2) {
					t.Errorf("unexpected decode: %v", got)
				}
			},
		},
		{
			name:    "empty input",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "no json at all",
			input:   "sure, searching now",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]interface{}
			err := ParseModelJSON(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestParseModelJSONArray(t *testing.T) {
	var got []string
	if err := ParseModelJSON(`Candidates: ["listing_001", "listing_002"]`, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "listing_001" {
		t.Errorf("unexpected decode: %v", got)
	}
}
