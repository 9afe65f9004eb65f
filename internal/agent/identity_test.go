package agent

import "testing"

func TestParseAgentID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType AgentType
		wantID   string
		wantErr  bool
	}{
		{name: "operator", input: "OPERATOR", wantType: AgentTypeOperator, wantID: "OPERATOR"},
		{name: "worker", input: "WORKER-scribe-1", wantType: AgentTypeWorker, wantID: "scribe-1"},
		{name: "missing name", input: "WORKER-", wantErr: true},
		{name: "unknown type", input: "GHOST-1", wantErr: true},
		{name: "no separator", input: "scribe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAgentID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Type != tt.wantType || got.ID != tt.wantID {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestGetCurrentAgentID(t *testing.T) {
	t.Setenv("QUILL_WORKER", "")
	id, err := GetCurrentAgentID("")
	if err != nil {
		t.Fatal(err)
	}
	if id.Type != AgentTypeOperator {
		t.Errorf("expected operator, got %s", id.Type)
	}

	t.Setenv("QUILL_WORKER", "night-shift")
	id, err = GetCurrentAgentID("")
	if err != nil {
		t.Fatal(err)
	}
	if id.FullID != "WORKER-night-shift" {
		t.Errorf("FullID = %s", id.FullID)
	}

	id, err = GetCurrentAgentID("WORKER-configured")
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != "configured" {
		t.Errorf("configured id should win, got %s", id.ID)
	}
}
