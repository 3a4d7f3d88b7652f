package triage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/paths"
	"github.com/rohankatakam/jobtriage/internal/planner"
	"github.com/rohankatakam/jobtriage/internal/snapshot"
	"github.com/rohankatakam/jobtriage/internal/storage"
)

const failedLog = `2026-01-27/09:00:01.000 PPCS1001I Job started $PREFIX=wccuds1
2026-01-27/09:00:02.000 PPCS1037F Resource not found [pcsmain.cpp,120]
ERROR: Generator returns a non-zero value
`

func writeFile(t *testing.T, root, rel, data string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(data), 0o644))
	return full
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// scannedSnapshot builds a small snapshot, scans it into its default
// database and returns the snapshot root and the config pointing at it.
func scannedSnapshot(t *testing.T) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "procs/wccuds1.procs", "CID : WCCU\nApplication Type: Statements\n__Processing Shell Script: /home/master/wccuds1_process.sh\n")
	writeFile(t, root, "master/wccuds1_process.sh", "#!/bin/sh\necho run\n")
	writeFile(t, root, "control/wccuds1.control", "format_dfa=\"WCCUDS11\"\n")
	writeFile(t, root, "docdef/WCCUDS11.dfa", "DOCFORMAT")

	cfg := config.Default()
	cfg.Cache.Directory = ""

	store, err := storage.NewSQLiteStore(cfg.DBPath(root), quietLogger())
	require.NoError(t, err)
	_, err = snapshot.NewScanner(store, paths.NewResolver(root), cfg.Snapshot, quietLogger()).Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.SaveMessageCode(context.Background(), &models.MessageCode{
		Code: "PPCS1037F", Severity: "F", Title: "Resource missing", Body: "A required resource could not be loaded.", SourcePath: "manual.pdf",
	}))
	require.NoError(t, store.Close())
	return root, cfg
}

func TestOpenValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Directory = ""

	_, err := Open(cfg, filepath.Join(t.TempDir(), "missing"), "", quietLogger())
	assert.ErrorContains(t, err, "snapshot path does not exist")

	_, err = Open(cfg, t.TempDir(), "", quietLogger())
	assert.ErrorContains(t, err, "Run 'jtriage scan' first")
}

func TestExplain(t *testing.T) {
	root, cfg := scannedSnapshot(t)
	svc, err := Open(cfg, root, "", quietLogger())
	require.NoError(t, err)
	defer svc.Close()

	logPath := writeFile(t, t.TempDir(), "wccuds1.log", failedLog)
	ctx := context.Background()

	report, err := svc.Explain(ctx, ExplainRequest{LogPath: logPath, Proc: "wccuds1", Persist: true})
	require.NoError(t, err)

	require.True(t, report.Match.Found())
	assert.Equal(t, "proc:wccuds1", report.Match.Node.Key)
	assert.Equal(t, 1.0, report.Match.Confidence)
	require.NotNil(t, report.Neighbors)
	assert.NotEmpty(t, report.Neighbors.Downstream)
	assert.Contains(t, report.RelatedFiles, filepath.Join(root, "procs", "wccuds1.procs"))
	assert.NotEmpty(t, report.Hypotheses)
	assert.Contains(t, report.Codes, "PPCS1037F")
	assert.NotContains(t, report.Codes, "PPCS1001I")
	require.NotEmpty(t, report.IncidentID)

	n, err := svc.Incidents().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// explaining the same log again updates the same incident
	again, err := svc.Explain(ctx, ExplainRequest{LogPath: logPath, Persist: true})
	require.NoError(t, err)
	assert.Equal(t, report.IncidentID, again.IncidentID)

	inc, err := svc.Incidents().ByLogPath(ctx, logPath)
	require.NoError(t, err)
	assert.NotNil(t, inc.UpdatedAt)
}

func TestExplainWithoutPersist(t *testing.T) {
	root, cfg := scannedSnapshot(t)
	svc, err := Open(cfg, root, "", quietLogger())
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	logPath := writeFile(t, t.TempDir(), "other.log", "all good\n")
	report, err := svc.Explain(ctx, ExplainRequest{LogPath: logPath, Proc: "nothing-like-this", Debug: true})
	require.NoError(t, err)
	assert.False(t, report.Match.Found())
	assert.Zero(t, report.Match.Confidence)
	assert.Nil(t, report.Neighbors)
	assert.Empty(t, report.IncidentID)
	assert.Len(t, report.Hypotheses, 1, "falls back to the default hypothesis")

	n, err := svc.Incidents().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.Explain(ctx, ExplainRequest{LogPath: filepath.Join(root, "missing.log")})
	assert.ErrorContains(t, err, "log file does not exist")
	_, err = svc.Explain(ctx, ExplainRequest{})
	assert.Error(t, err)
}

func TestPlanAndStats(t *testing.T) {
	root, cfg := scannedSnapshot(t)
	cfg.Planner.DefaultLimit = 1
	svc, err := Open(cfg, root, "", quietLogger())
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	res, err := svc.Plan(ctx, planner.Request{CID: "WCCU", JobID: "DS1"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "proc:wccuds1", res.Candidates[0].Key)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Procs)
	assert.Equal(t, 1, st.MessageCodes)
	assert.Equal(t, 1, st.Artifacts["procs"])
	assert.Positive(t, st.Graph.TotalNodes())
	assert.Zero(t, st.Incidents)
	assert.Empty(t, st.TopNodes)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Positive(t, rules.Len())

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
