package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Record
		wantErr error
		skip    bool
	}{
		{
			name: "full line",
			line: "alice:sk-abc:primary key",
			want: Record{Name: "alice", Secret: "sk-abc", Description: "primary key", Active: true},
		},
		{
			name: "no description",
			line: "bob:sk-def",
			want: Record{Name: "bob", Secret: "sk-def", Active: true},
		},
		{
			name: "description keeps colons",
			line: "carol:sk-ghi:used by host:8080",
			want: Record{Name: "carol", Secret: "sk-ghi", Description: "used by host:8080", Active: true},
		},
		{
			name: "surrounding whitespace",
			line: "  dave : sk-jkl :  note  ",
			want: Record{Name: "dave", Secret: "sk-jkl", Description: "note", Active: true},
		},
		{
			name: "inactive marker",
			line: "erin:sk-mno:retired [inactive]",
			want: Record{Name: "erin", Secret: "sk-mno", Description: "retired", Active: false},
		},
		{
			name: "inactive marker only",
			line: "frank:sk-pqr:[inactive]",
			want: Record{Name: "frank", Secret: "sk-pqr", Active: false},
		},
		{
			name: "trailing word inactive is description text",
			line: "gina:sk-stu:was inactive",
			want: Record{Name: "gina", Secret: "sk-stu", Description: "was inactive", Active: true},
		},
		{
			name: "bare word inactive is description text",
			line: "hank:sk-xyz:inactive",
			want: Record{Name: "hank", Secret: "sk-xyz", Description: "inactive", Active: true},
		},
		{
			name:    "missing prefix",
			line:    "henry:abc123:nope",
			wantErr: ErrInvalidSecret,
		},
		{
			name:    "missing name",
			line:    ":sk-vwx:anon",
			wantErr: ErrInvalidName,
		},
		{name: "blank", line: "   ", skip: true},
		{name: "comment", line: "# a:sk-b:c", skip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.skip {
				if !errors.Is(err, ErrSkipLine) {
					t.Errorf("expected ErrSkipLine, got %v", err)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}

	if _, err := ParseLine("justonefield"); err == nil {
		t.Error("expected error for a single field")
	}
}

func TestFormatLine(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
	}{
		{Record{Name: "a", Secret: "sk-1", Description: "d", Active: true}, "a:sk-1:d"},
		{Record{Name: "a", Secret: "sk-1", Active: true}, "a:sk-1:"},
		{Record{Name: "a", Secret: "sk-1", Description: "d", Active: false}, "a:sk-1:d [inactive]"},
		{Record{Name: "a", Secret: "sk-1", Active: false}, "a:sk-1:[inactive]"},
	}

	for _, tt := range tests {
		if got := FormatLine(tt.rec); got != tt.want {
			t.Errorf("FormatLine(%+v) = %q, want %q", tt.rec, got, tt.want)
		}
	}
}

func TestFileStore_Load(t *testing.T) {
	path := writeKeyFile(t, `# header comment
alice:sk-alice:first

not-a-valid-line
bob:bob-secret:wrong prefix
carol:sk-carol
`)

	store := NewFileStore(path)
	records, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	if records[0].Name != "alice" || records[1].Name != "carol" {
		t.Errorf("unexpected records: %+v", records)
	}
	for _, r := range records {
		if r.CreatedAt.IsZero() {
			t.Errorf("expected created_at to be set for %s", r.Name)
		}
	}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.txt"))

	if _, err := store.Load(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	mt, err := store.ModTime(context.Background())
	if err != nil {
		t.Fatalf("ModTime failed: %v", err)
	}
	if !mt.IsZero() {
		t.Errorf("expected zero mod time for a missing file, got %v", mt)
	}
}

func TestFileStore_SaveRoundTripsActiveFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "api_keys.txt")
	store := NewFileStore(path)
	ctx := context.Background()

	in := []Record{
		{Name: "alice", Secret: "sk-alice", Description: "main", Active: true},
		{Name: "bob", Secret: "sk-bob", Description: "retired", Active: false},
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "#") {
		t.Error("expected saved file to start with a header comment")
	}
	if !strings.Contains(content, "bob:sk-bob:retired [inactive]\n") {
		t.Errorf("expected inactive marker in saved file:\n%s", content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", info.Mode().Perm())
	}

	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if !out[0].Active || out[1].Active {
		t.Errorf("active flags not preserved: %+v", out)
	}
	if out[1].Description != "retired" {
		t.Errorf("expected marker stripped from description, got %q", out[1].Description)
	}
}

func TestRegistry_FileStoreHotReload(t *testing.T) {
	path := writeKeyFile(t, "alice:sk-alice:first\n")
	reg := NewRegistry(NewFileStore(path))
	ctx := context.Background()

	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Unchanged file: no reload.
	if reloaded, err := reg.RefreshIfStale(ctx); err != nil || reloaded {
		t.Fatalf("expected no reload, got reloaded=%v err=%v", reloaded, err)
	}

	if err := os.WriteFile(path, []byte("bob:sk-bob:second\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite key file: %v", err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	reloaded, err := reg.RefreshIfStale(ctx)
	if err != nil {
		t.Fatalf("RefreshIfStale failed: %v", err)
	}
	if !reloaded {
		t.Fatal("expected reload after the file changed")
	}
	if reg.Validate("sk-alice") || !reg.Validate("sk-bob") {
		t.Error("expected table to reflect the rewritten file")
	}

	// Saving must not make the next check reload.
	reg.Deactivate("sk-bob")
	if err := reg.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if reloaded, _ := reg.RefreshIfStale(ctx); reloaded {
		t.Error("expected no reload after our own save")
	}
	if reg.Validate("sk-bob") {
		t.Error("expected bob to remain inactive")
	}
}
