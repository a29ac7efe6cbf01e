package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBootstrapDevKeyCreatesFile(t *testing.T) {
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "test-keys.yaml")

	result, err := BootstrapDevKey(keysPath, "acme")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected Created=true")
	}
	if result.Key == "" {
		t.Fatalf("expected non-empty key")
	}
	if result.OrgID != "acme" {
		t.Fatalf("expected org=acme, got %s", result.OrgID)
	}

	if _, err := os.Stat(keysPath); err != nil {
		t.Fatalf("keys file not created: %v", err)
	}

	ring, err := LoadKeyring(keysPath)
	if err != nil {
		t.Fatalf("load keyring: %v", err)
	}
	id, ok := ring.IdentityForKey(result.Key)
	if !ok || id.OrgID != "acme" || id.ActorID != "dev" {
		t.Fatalf("expected key to map to acme/dev, got %+v ok=%v", id, ok)
	}
}

func TestBootstrapDevKeySkipsExisting(t *testing.T) {
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "test-keys.yaml")

	if err := os.WriteFile(keysPath, []byte("existing"), 0600); err != nil {
		t.Fatalf("write existing: %v", err)
	}

	result, err := BootstrapDevKey(keysPath, "acme")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if result.Created {
		t.Fatalf("expected Created=false for existing file")
	}

	data, _ := os.ReadFile(keysPath)
	if string(data) != "existing" {
		t.Fatalf("file was modified")
	}
}

func TestBootstrapDevKeyDefaultOrg(t *testing.T) {
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "test-keys.yaml")

	result, err := BootstrapDevKey(keysPath, "")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if result.OrgID != "dev" {
		t.Fatalf("expected default org=dev, got %s", result.OrgID)
	}
}

func TestLoadKeyringMissingFileBootstraps(t *testing.T) {
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "auto-keys.yaml")

	ring, err := LoadKeyring(keysPath)
	if err != nil {
		t.Fatalf("load keyring: %v", err)
	}
	if !ring.AllowLocalhostWithoutAuth {
		t.Fatalf("expected localhost bypass enabled by default")
	}
	if _, err := os.Stat(keysPath); err != nil {
		t.Fatalf("keys file not bootstrapped: %v", err)
	}
}

func TestLoadKeyringRejectsReusedKeys(t *testing.T) {
	dir := t.TempDir()
	keysPath := filepath.Join(dir, "dup-keys.yaml")
	body := `organizations:
  org-a:
    keys:
      - key: shared
        actor: alice
  org-b:
    keys:
      - key: shared
        actor: bob
`
	if err := os.WriteFile(keysPath, []byte(body), 0600); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	if _, err := LoadKeyring(keysPath); err == nil {
		t.Fatal("expected error for key reused across organizations")
	}
}
