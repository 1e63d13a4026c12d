package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{NonStandardLibrary, "fmt", false},
		{NonStandardLibrary, "net/http", false},
		{NonStandardLibrary, "arboria/pkg/domain", true},
		{NonStandardLibrary, "github.com/go-chi/chi/v5", true},
		{AdapterImport, "arboria/internal/adapters/httpapi", true},
		{AdapterImport, "arboria/cmd/arboriactl", true},
		{AdapterImport, "arboria/internal/core", false},
		{InternalImport, "arboria/internal/core", true},
		{InternalImport, "arboria/pkg/domain", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("predicate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"arboria/internal/core\"\n)\nvar _ = fmt.Sprint\n")
	write("a_test.go", "package tmp\nimport \"arboria/internal/adapters/httpapi\"\n")

	viols, err := directImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "a.go: arboria/internal/core" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, AdapterImport, "test files are skipped")

	write("broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAssertNoTransitiveDependencyParsesOutput(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\n\nstrings\narboria/pkg/domain\n"), nil
	}
	AssertNoTransitiveDependency(t, "./pkg/domain", InternalImport, "domain stays leaf")

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	rec := &recorder{}
	AssertNoTransitiveDependency(rec, "./...", InternalImport, "x")
	if !rec.failed {
		t.Fatalf("expected failure on go list error")
	}
}

type recorder struct {
	testing.TB
	failed bool
}

func (r *recorder) Helper()              {}
func (r *recorder) Fatalf(string, ...any) { r.failed = true }
