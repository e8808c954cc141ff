package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/mdscript/internal/engine"
	"github.com/san-kum/mdscript/internal/script"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifestResolvesPaths(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "suite.yaml", "name: water\nscripts:\n  - path: in.min\n  - path: /abs/in.run\n    units: real\n")
	m, err := LoadManifest(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(m.Name).To(Equal("water"))
	g.Expect(m.Scripts).To(Equal([]Entry{
		{Path: filepath.Join(dir, "in.min")},
		{Path: "/abs/in.run", Units: "real"},
	}))
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	for _, data := range []string{"name: empty\n", "scripts:\n  - units: real\n", "scripts: {"} {
		path := writeFile(t, dir, "bad.yaml", data)
		if _, err := LoadManifest(path); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}

func TestCheckKeepsManifestOrder(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()

	good := writeFile(t, dir, "good.in", "fix 1 all nve\nrun 100\n")
	bad := writeFile(t, dir, "bad.in", "thermo 10\nrun 100\nthermo 5\n")
	unparsable := writeFile(t, dir, "quote.in", "print \"open\n")
	units := writeFile(t, dir, "units.in", "fix 1 all nve\nrun 10\n")

	m := &Manifest{Scripts: []Entry{
		{Path: good},
		{Path: bad},
		{Path: unparsable},
		{Path: units, Units: "metal"},
		{Path: filepath.Join(dir, "missing.in")},
	}}

	results := Check(context.Background(), m, Options{Units: "lj", Strict: true, Workers: 2})
	g.Expect(results).To(HaveLen(5))

	g.Expect(results[0].OK()).To(BeTrue())
	g.Expect(results[0].Applied).To(Equal(2))
	g.Expect(results[0].State.Step).To(Equal(int64(100)))

	g.Expect(results[1].Path).To(Equal(bad))
	g.Expect(errors.Is(results[1].Err, engine.ErrNoIntegrator)).To(BeTrue())
	g.Expect(results[1].Applied).To(Equal(1))
	g.Expect(results[1].Total).To(Equal(3))

	g.Expect(errors.Is(results[2].Err, script.ErrUnterminatedQuote)).To(BeTrue())

	g.Expect(results[3].OK()).To(BeTrue())
	g.Expect(results[3].State.Units).To(Equal("metal"))
	g.Expect(results[3].State.Phases[0].Timestep).To(Equal(0.001))

	g.Expect(errors.Is(results[4].Err, os.ErrNotExist)).To(BeTrue())

	g.Expect(Failed(results)).To(Equal(3))
}

func TestCheckCanceled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.in", "thermo 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Check(ctx, &Manifest{Scripts: []Entry{{Path: path}}}, Options{Workers: 1})
	if results[0].OK() {
		t.Error("expected a canceled result")
	}
}
