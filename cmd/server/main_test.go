package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadPointsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pts.csv")
	if err := os.WriteFile(path, []byte("id,x,y\na,1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pts, err := readPointsFile(path, nil)
	if err != nil || len(pts) != 1 || pts[0].ID != "a" {
		t.Fatalf("file points = %+v, %v", pts, err)
	}

	pts, err = readPointsFile("-", strings.NewReader("id,x,y\nb,3,4\nc,5,6\n"))
	if err != nil || len(pts) != 2 {
		t.Fatalf("stdin points = %+v, %v", pts, err)
	}

	if _, err := readPointsFile(filepath.Join(t.TempDir(), "none.csv"), nil); err == nil {
		t.Error("missing file accepted")
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("FWA_SERVER_JWT_SECRET", "")
	configPath = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"token"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("token issued without a secret")
	}
}

func TestTokenIssued(t *testing.T) {
	t.Setenv("FWA_SERVER_JWT_SECRET", "s3cret")
	configPath = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--subject", "ci"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.Count(strings.TrimSpace(out.String()), ".") != 2 {
		t.Errorf("output %q is not a JWT", out.String())
	}
}

func TestLoadRunExport(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FWA_DATABASE_PATH", filepath.Join(dir, "fwa.db"))
	t.Setenv("FWA_LOGGING_LEVEL", "error")
	configPath = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"load-fixture", "../../internal/repository/testdata/network.yaml"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	pts := filepath.Join(dir, "pts.csv")
	if err := os.WriteFile(pts, []byte("id,x,y\nriver,5,5200\nfar,9000,9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	rootCmd.SetArgs([]string{"run", "--points", pts, "--workers", "1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "REFERENCING_MISS") {
		t.Errorf("report missing the unmatched point:\n%s", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"export", "river", "--dissolve"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"FeatureCollection"`) {
		t.Errorf("export output:\n%s", out.String())
	}
}
