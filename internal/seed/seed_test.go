package seed

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	data := `
admins:
  - email: rector@example.edu
    password: change-me
    display_name: Rector
departments:
  - Computer Science
  - Mathematics
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	file, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(file.Admins) != 1 || file.Admins[0].Email != "rector@example.edu" {
		t.Fatalf("unexpected admins: %+v", file.Admins)
	}
	if len(file.Departments) != 2 || file.Departments[1] != "Mathematics" {
		t.Fatalf("unexpected departments: %+v", file.Departments)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte("admins: [}"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
