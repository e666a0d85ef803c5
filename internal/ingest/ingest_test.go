package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/scan"
	"github.com/roach88/zugdienste/internal/store"
	"github.com/roach88/zugdienste/internal/testutil"
)

func testConfig(t *testing.T, install string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.InstallationPath = install
	cfg.Database = filepath.Join(t.TempDir(), "services.db")
	return cfg
}

func testDeps() Deps {
	return Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  testutil.NewFixedClock(time.Time{}),
		RunIDs: testutil.NewFixedRunIDGenerator("run-1"),
	}
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, path string) int64 {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountServices(context.Background())
	require.NoError(t, err)
	return n
}

func TestRun_HamburgKassel(t *testing.T) {
	install := t.TempDir()
	path := testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	cfg := testConfig(t, install)

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	assert.Equal(t, StateDone, sum.State)
	assert.Equal(t, ir.RunStatusDone, sum.Status)
	assert.Equal(t, int64(1), sum.Scanned, "train file is a companion, not a scanned file")
	assert.Equal(t, int64(1), sum.Inserted)
	assert.Zero(t, sum.Skipped)

	s := openStore(t, cfg.Database)
	got, err := s.GetService(t.Context(), filepath.ToSlash(path))
	require.NoError(t, err)

	assert.Equal(t, "Hamburg - Kassel", got.Route)
	assert.Equal(t, "BR 412 (ICE 4)", got.Locomotive)
	assert.Equal(t, "Hamburg Hbf", got.EntryPoint)
	assert.Equal(t, "Kassel Hbf", got.EndStation)
	assert.Equal(t, int64(3), got.StopCount)
	assert.Equal(t, "2:35:00", got.Duration)
	assert.Equal(t, ir.OriginInstallation, got.Origin)
	assert.Equal(t, "run-1", got.ScanID)
	assert.True(t, testutil.DefaultTestTime.Equal(got.ScannedAt))

	run, err := s.LastRun(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, ir.RunStatusDone, run.Status)
	assert.Equal(t, int64(1), run.Ingested)
}

func TestRun_Idempotent(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	testutil.WriteService(t, install, "Deutschland/Ruhr-Sieg/RSN/RE 9.timetable.xml", testutil.HamburgKassel())
	cfg := testConfig(t, install)

	first, err := Run(t.Context(), cfg, Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  testutil.NewFixedClock(time.Time{}),
		RunIDs: testutil.NewFixedRunIDGenerator("run-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Inserted)

	s := openStore(t, cfg.Database)
	before, err := s.ListServices(t.Context(), store.ListFilter{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	second, err := Run(t.Context(), cfg, Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  testutil.NewFixedClock(testutil.DefaultTestTime.Add(time.Hour)),
		RunIDs: testutil.NewFixedRunIDGenerator("run-2"),
	})
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Zero(t, second.Updated)
	assert.Equal(t, int64(2), second.Unchanged)

	s = openStore(t, cfg.Database)
	after, err := s.ListServices(t.Context(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ServiceRecord, after[i].ServiceRecord)
		assert.Equal(t, "run-2", after[i].ScanID)
	}
}

func TestRun_ChangedFileIsReplaced(t *testing.T) {
	install := t.TempDir()
	svc := testutil.HamburgKassel()
	path := testutil.WriteService(t, install, testutil.HamburgKasselRel, svc)
	cfg := testConfig(t, install)

	_, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	svc.Parts[0].Locomotive = "BR 403"
	testutil.WriteService(t, install, testutil.HamburgKasselRel, svc)

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Updated)

	s := openStore(t, cfg.Database)
	got, err := s.GetService(t.Context(), filepath.ToSlash(path))
	require.NoError(t, err)
	assert.Equal(t, "BR 403", got.Locomotive)
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_FaultIsolation(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	testutil.WriteFile(t, install, "Deutschland/Broken/F/Bad.timetable.xml", "<Zusi><Buchfahrplan")
	testutil.WriteFile(t, install, "Deutschland/Broken/F/Bad.trn", testutil.HamburgKassel().TrainXML())
	testutil.WriteFile(t, install, "Deutschland/Broken/F/Lonely.timetable.xml", testutil.HamburgKassel().ServiceXML())
	cfg := testConfig(t, install)

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	assert.Equal(t, int64(3), sum.Scanned)
	assert.Equal(t, int64(1), sum.Inserted)
	assert.Equal(t, int64(2), sum.Skipped)
	assert.Equal(t, map[string]int64{"malformed_xml": 1, "missing_train_file": 1}, sum.Reasons)
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_WriteErrorIsolation(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			install := t.TempDir()
			testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
			testutil.WriteService(t, install, "Deutschland/Rejected/F/RE 1.timetable.xml", testutil.HamburgKassel())
			cfg := testConfig(t, install)
			cfg.Workers = workers

			// The schema has to exist before the trigger can be attached.
			require.NoError(t, openStore(t, cfg.Database).Close())
			raw, err := sql.Open("sqlite3", cfg.Database)
			require.NoError(t, err)
			_, err = raw.Exec(`
				CREATE TRIGGER reject_service BEFORE INSERT ON services
				WHEN instr(NEW.source_path, '/Rejected/') > 0
				BEGIN SELECT RAISE(ABORT, 'rejected by trigger'); END`)
			require.NoError(t, err)
			require.NoError(t, raw.Close())

			sum, err := Run(t.Context(), cfg, testDeps())
			require.NoError(t, err, "a failed write does not fail the run")

			assert.Equal(t, int64(2), sum.Scanned)
			assert.Equal(t, int64(1), sum.Inserted)
			assert.Equal(t, int64(1), sum.Failed)
			assert.Equal(t, int64(1), sum.Reasons["write_error"])
			assert.Equal(t, ir.RunStatusDone, sum.Status)
			assert.Equal(t, int64(1), countRows(t, cfg.Database))
		})
	}
}

func TestRun_UnrecognizedExtension(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	testutil.WriteFile(t, install, "Deutschland/Hamburg - Kassel/ICE_Fahrplan/notes.txt", "not a timetable")
	testutil.WriteFile(t, install, "Deutschland/Hamburg - Kassel/ICE_Fahrplan.fpn", "<Zusi/>")
	cfg := testConfig(t, install)

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Ingested())
	assert.Equal(t, int64(1), sum.Skipped)
	assert.Equal(t, int64(1), sum.Reasons["unrecognized_format"])
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_Exclusions(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	testutil.WriteService(t, install, "Deutschland/Test/F/RE 1.timetable.xml", testutil.HamburgKassel())
	cfg := testConfig(t, install)
	cfg.ExclusionKeywords = []string{"test"}

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Excluded)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_UserRoot(t *testing.T) {
	install := t.TempDir()
	user := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	userPath := testutil.WriteService(t, user, "Deutschland/Eigene/F/RB 1.timetable.xml", testutil.HamburgKassel())
	cfg := testConfig(t, install)
	cfg.Paths.UserPath = user

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)
	assert.Len(t, sum.Roots, 2)
	assert.Equal(t, int64(2), sum.Inserted)

	s := openStore(t, cfg.Database)
	got, err := s.GetService(t.Context(), filepath.ToSlash(userPath))
	require.NoError(t, err)
	assert.Equal(t, ir.OriginUser, got.Origin)
	assert.Equal(t, "Eigene", got.Route)
}

func TestRun_MissingUserRoot(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	cfg := testConfig(t, install)
	cfg.Paths.UserPath = filepath.Join(t.TempDir(), "does-not-exist")

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)
	assert.Len(t, sum.Roots, 1)
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_MissingInstallationRoot(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))

	sum, err := Run(t.Context(), cfg, testDeps())
	require.Error(t, err)

	var dirErr *scan.DirectoryAccessError
	require.True(t, errors.As(err, &dirErr))
	assert.True(t, dirErr.Required)
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateFailed, sum.State)

	_, statErr := os.Stat(cfg.Database)
	assert.True(t, os.IsNotExist(statErr), "database must not be created")
}

func TestRun_EmptyInstallationPath(t *testing.T) {
	cfg := testConfig(t, "")

	_, err := Run(t.Context(), cfg, testDeps())

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, IsFatal(err))
}

func TestRun_StoreOpenFailure(t *testing.T) {
	install := t.TempDir()
	cfg := testConfig(t, install)
	cfg.Database = filepath.Join(t.TempDir(), "missing-dir", "services.db")

	_, err := Run(t.Context(), cfg, testDeps())

	var openErr *store.StoreOpenError
	require.True(t, errors.As(err, &openErr))
	assert.True(t, IsFatal(err))
}

func TestRun_RepeatedScansKeepRowCount(t *testing.T) {
	install := t.TempDir()
	for i := range 5 {
		testutil.WriteService(t, install, fmt.Sprintf("Deutschland/R/F/RE %d.timetable.xml", i), testutil.HamburgKassel())
	}
	cfg := testConfig(t, install)

	for i := range 3 {
		_, err := Run(t.Context(), cfg, testDeps())
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, int64(5), countRows(t, cfg.Database), "run %d", i)
	}
}

func TestRun_Prune(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	gone := testutil.WriteService(t, install, "Deutschland/R/F/RE 1.timetable.xml", testutil.HamburgKassel())
	cfg := testConfig(t, install)

	_, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	sum, err := Run(t.Context(), cfg, Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		RunIDs: testutil.NewFixedRunIDGenerator("run-2"),
	})
	require.NoError(t, err)
	assert.Zero(t, sum.Pruned, "pruning is opt-in")
	assert.Equal(t, int64(2), countRows(t, cfg.Database))

	cfg.Prune = true
	sum, err = Run(t.Context(), cfg, Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		RunIDs: testutil.NewFixedRunIDGenerator("run-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Pruned)
	assert.Equal(t, int64(1), countRows(t, cfg.Database))
}

func TestRun_ConcurrentWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	install := t.TempDir()
	const services = 40
	for i := range services {
		testutil.WriteService(t, install, fmt.Sprintf("Deutschland/R%d/F/RE %d.timetable.xml", i%4, i), testutil.HamburgKassel())
	}
	testutil.WriteFile(t, install, "Deutschland/R0/F/Bad.timetable.xml", "<Zusi>")
	testutil.WriteFile(t, install, "Deutschland/R0/F/readme.txt", "x")
	cfg := testConfig(t, install)
	cfg.Workers = 4

	sum, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	assert.Equal(t, int64(services+2), sum.Scanned)
	assert.Equal(t, int64(services), sum.Inserted)
	assert.Equal(t, int64(2), sum.Skipped)
	assert.Equal(t, int64(services), countRows(t, cfg.Database))
}

// cancelClock cancels a context on its n-th reading.
type cancelClock struct {
	mu     sync.Mutex
	calls  int
	n      int
	cancel context.CancelFunc
}

func (c *cancelClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == c.n {
		c.cancel()
	}
	return testutil.DefaultTestTime
}

func TestRun_Cancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			install := t.TempDir()
			for i := range 20 {
				testutil.WriteService(t, install, fmt.Sprintf("Deutschland/R/F/RE %02d.timetable.xml", i), testutil.HamburgKassel())
			}
			cfg := testConfig(t, install)
			cfg.Workers = workers

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			// Reading 1 stamps the run start, reading 2 the first upsert.
			deps := testDeps()
			deps.Clock = &cancelClock{n: 3, cancel: cancel}

			sum, err := Run(ctx, cfg, deps)
			require.Error(t, err)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, ir.RunStatusInterrupted, sum.Status)
			assert.Less(t, sum.Inserted, int64(20))

			rows := countRows(t, cfg.Database)
			assert.Equal(t, sum.Inserted, rows, "every counted insert is committed")

			s := openStore(t, cfg.Database)
			run, err := s.LastRun(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ir.RunStatusInterrupted, run.Status)
		})
	}
}

func TestRun_MetricsFile(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	testutil.WriteFile(t, install, "x/y/z/notes.txt", "x")
	cfg := testConfig(t, install)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "zugdienste.prom")

	_, err := Run(t.Context(), cfg, testDeps())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `zugdienste_files_total{outcome="ok"} 1`)
	assert.Contains(t, text, `zugdienste_files_total{outcome="skipped"} 1`)
	assert.Contains(t, text, `zugdienste_skipped_files_total{reason="unrecognized_format"} 1`)
	assert.Contains(t, text, `zugdienste_upserts_total{result="inserted"} 1`)
	assert.Contains(t, text, "zugdienste_services 1")
}

func TestRun_MetricsFileFailureIsLogged(t *testing.T) {
	install := t.TempDir()
	testutil.WriteService(t, install, testutil.HamburgKasselRel, testutil.HamburgKassel())
	cfg := testConfig(t, install)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "missing-dir", "zugdienste.prom")

	var logs bytes.Buffer
	deps := testDeps()
	deps.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	sum, err := Run(t.Context(), cfg, deps)
	require.NoError(t, err)
	assert.Equal(t, ir.RunStatusDone, sum.Status)
	assert.Equal(t, int64(1), sum.Inserted)
	assert.Contains(t, logs.String(), "failed to write metrics file")
}
