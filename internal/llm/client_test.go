package llm

import "testing"

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bare object", `{"threshold": 3}`},
		{"json fence", "```json\n{\"threshold\": 3}\n```"},
		{"plain fence", "```\n{\"threshold\": 3}\n```"},
		{"preamble", "Here is the analysis you asked for:\n{\"threshold\": 3}\nLet me know if you need more."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Threshold int `json:"threshold"`
			}
			if err := ParseJSONResponse(tt.input, &out); err != nil {
				t.Fatalf("ParseJSONResponse: %v", err)
			}
			if out.Threshold != 3 {
				t.Fatalf("threshold = %d, want 3", out.Threshold)
			}
		})
	}
}

func TestParseJSONResponseArray(t *testing.T) {
	var out []struct {
		CaseID string `json:"case_id"`
	}
	input := "The extracted cases:\n```json\n[{\"case_id\": \"case_1\"}, {\"case_id\": \"case_2\"}]\n```"
	if err := ParseJSONResponse(input, &out); err != nil {
		t.Fatalf("ParseJSONResponse: %v", err)
	}
	if len(out) != 2 || out[1].CaseID != "case_2" {
		t.Fatalf("parsed %v, want two cases", out)
	}
}

func TestParseJSONResponseRejectsGarbage(t *testing.T) {
	var out map[string]any
	if err := ParseJSONResponse("I could not produce a result.", &out); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}
