package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	t.Setenv("PEERMATCH_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{
			name: "file wins over value and env",
			src:  Source{Name: "api key", File: keyFile, Value: "inline", Env: "PEERMATCH_TEST_SECRET"},
			want: "from-file",
		},
		{
			name: "value wins over env",
			src:  Source{Value: " inline ", Env: "PEERMATCH_TEST_SECRET"},
			want: "inline",
		},
		{
			name: "env used as last resort",
			src:  Source{Env: "PEERMATCH_TEST_SECRET"},
			want: "from-env",
		},
		{
			name:    "empty file is an error",
			src:     Source{Name: "api key", File: emptyFile, Env: "PEERMATCH_TEST_SECRET"},
			wantErr: "is empty",
		},
		{
			name:    "missing file is an error",
			src:     Source{File: filepath.Join(dir, "missing")},
			wantErr: "reading secret",
		},
		{
			name:    "nothing configured",
			src:     Source{Name: "api key", Env: "PEERMATCH_TEST_UNSET"},
			wantErr: "api key is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
