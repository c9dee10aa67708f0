package config

import "testing"

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"ws://localhost:4000/graphql", "ws://localhost:4000/graphql", false},
		{"wss://peer.example.com/graphql", "wss://peer.example.com/graphql", false},
		{"http://localhost:4000/graphql", "ws://localhost:4000/graphql", false},
		{"https://peer.example.com/graphql", "wss://peer.example.com/graphql", false},
		{"tcp://localhost:4000", "", true},
		{"ws:///graphql", "", true},
		{"://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeEndpoint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeEndpoint(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("normalizeEndpoint(%q) = %q; want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyRuntimeValidation_LowercasesEncoding(t *testing.T) {
	cfg := defaultConfig()
	cfg.Relay.Encoding = "JSON"

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() = %v", err)
	}
	if cfg.Relay.Encoding != EncodingJSON {
		t.Errorf("Encoding = %s; want json", cfg.Relay.Encoding)
	}
}
