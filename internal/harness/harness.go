package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ingest"
	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/store"
	"github.com/roach88/zugdienste/internal/testutil"
)

const serviceSuffix = config.DefaultServiceSuffix

// fixtures are the services a scenario can refer to by name.
var fixtures = map[string]func() testutil.Service{
	"hamburg_kassel": testutil.HamburgKassel,
}

// Result is the outcome of running a scenario.
type Result struct {
	// Scans holds one summary per scan, in order.
	Scans []ingest.Summary

	// Services is the catalogue after the last scan.
	Services []store.Service

	installRoot string
	userRoot    string
}

// Run builds the scenario's roots in temporary directories and scans
// them. Every scan error is returned; assertions are not evaluated.
func Run(t testing.TB, s *Scenario) (*Result, error) {
	t.Helper()

	res := &Result{installRoot: t.TempDir()}
	if err := writeFiles(t, res.installRoot, s.Installation); err != nil {
		return nil, err
	}
	if len(s.User) > 0 {
		res.userRoot = t.TempDir()
		if err := writeFiles(t, res.userRoot, s.User); err != nil {
			return nil, err
		}
	}

	cfg := config.Default()
	cfg.Paths.InstallationPath = res.installRoot
	cfg.Paths.UserPath = res.userRoot
	cfg.Database = filepath.Join(t.TempDir(), "services.db")
	cfg.ExclusionKeywords = s.Config.ExclusionKeywords
	cfg.Prune = s.Config.Prune
	if s.Config.Workers > 0 {
		cfg.Workers = s.Config.Workers
	}

	clock := testutil.NewFixedClock(time.Time{})
	deps := ingest.Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock,
		RunIDs: &sequentialRunIDs{},
	}

	ctx := context.Background()
	scan := func(prune bool) error {
		c := cfg
		c.Prune = c.Prune || prune
		sum, err := ingest.Run(ctx, c, deps)
		if err != nil {
			return fmt.Errorf("scan %d: %w", len(res.Scans)+1, err)
		}
		res.Scans = append(res.Scans, sum)
		clock.Advance(time.Minute)
		return nil
	}

	if err := scan(false); err != nil {
		return nil, err
	}
	for _, r := range s.Rescans {
		if err := writeFiles(t, res.installRoot, r.Write); err != nil {
			return nil, err
		}
		for _, rel := range r.Remove {
			if err := removeService(res.installRoot, rel); err != nil {
				return nil, err
			}
		}
		if err := scan(r.Prune); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	res.Services, err = st.ListServices(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Rel returns the root-relative path of a stored service as
// "<origin>:<path>".
func (r *Result) Rel(svc store.Service) string {
	root := r.installRoot
	if svc.Origin == ir.OriginUser {
		root = r.userRoot
	}
	prefix := filepath.ToSlash(root) + "/"
	return string(svc.Origin) + ":" + strings.TrimPrefix(svc.SourcePath, prefix)
}

// Service finds a stored service by origin and root-relative path.
func (r *Result) Service(origin ir.Origin, rel string) (store.Service, bool) {
	want := string(origin) + ":" + rel
	for _, svc := range r.Services {
		if r.Rel(svc) == want {
			return svc, true
		}
	}
	return store.Service{}, false
}

func writeFiles(t testing.TB, root string, files []File) error {
	t.Helper()
	for _, f := range files {
		if f.Content != "" {
			testutil.WriteFile(t, root, f.Path, f.Content)
			continue
		}

		newFixture, ok := fixtures[f.Fixture]
		if !ok {
			return fmt.Errorf("%s: unknown fixture %q", f.Path, f.Fixture)
		}
		svc := newFixture()
		if f.Patch != nil {
			f.Patch.apply(&svc)
		}
		testutil.WriteService(t, root, f.Path, svc)
	}
	return nil
}

func (p *Patch) apply(svc *testutil.Service) {
	if p.Locomotive != "" {
		svc.Parts[0].Locomotive = p.Locomotive
	}
	if p.Group != "" {
		svc.Group = p.Group
	}
	if p.Cargo {
		svc.TrainType = ""
	}
}

// removeService deletes a service file and, if present, its train file.
func removeService(root, rel string) error {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	if strings.HasSuffix(rel, serviceSuffix) {
		train := strings.TrimSuffix(path, serviceSuffix) + config.DefaultTrainSuffix
		if err := os.Remove(train); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", train, err)
		}
	}
	return nil
}

// sequentialRunIDs hands out scan-1, scan-2, ... so prune can tell
// scans apart while snapshots stay stable.
type sequentialRunIDs struct {
	n int
}

func (g *sequentialRunIDs) Generate() string {
	g.n++
	return fmt.Sprintf("scan-%d", g.n)
}
