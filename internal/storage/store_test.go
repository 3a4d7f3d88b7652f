package storage

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/models"
)

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	store, err := Open(config.StorageConfig{Type: "sqlite"}, ":memory:", nil)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, DialectSQLite, store.Dialect())

	_, err = Open(config.StorageConfig{Type: "postgres"}, "", nil)
	assert.Error(t, err)

	_, err = Open(config.StorageConfig{Type: "mysql"}, "", nil)
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
	assert.Equal(t, `%wccu%`, contains("wccu"))
	assert.Equal(t, `proc:wc\_%`, prefix("proc:wc_"))
}

func TestArtifacts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveArtifacts(ctx, []models.Artifact{
		{Kind: "control", Path: "control/wccudl014.control", SHA256: "a", Size: 10, TextContent: "format_dfa=WCCUDL014"},
		{Kind: "control", Path: "control/wccuds1.control", SHA256: "b", Size: 10, TextContent: "x"},
		{Kind: "docdef", Path: "docdef/WCCUDL014.dfa", Size: 10},
		{Kind: "script", Path: "master/run.sh", Size: 3, TextContent: "line one\nPERMISSION denied here"},
	}))

	// Upsert by path replaces the row.
	require.NoError(t, store.SaveArtifacts(ctx, []models.Artifact{
		{Kind: "control", Path: "control/wccuds1.control", SHA256: "c", Size: 11, TextContent: "y"},
	}))
	a, err := store.Artifact(ctx, "control/wccuds1.control")
	require.NoError(t, err)
	assert.Equal(t, "c", a.SHA256)
	assert.Equal(t, "y", a.TextContent)

	_, err = store.Artifact(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	controls, err := store.ArtifactsByKind(ctx, "control", "WCCUDL")
	require.NoError(t, err)
	require.Len(t, controls, 1)
	assert.Equal(t, "control/wccudl014.control", controls[0].Path)

	all, err := store.ArtifactsByKind(ctx, "control", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	docdefs, err := store.ArtifactsByKind(ctx, "docdef", "wccudl014")
	require.NoError(t, err)
	assert.Len(t, docdefs, 1)

	counts, err := store.ArtifactCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"control": 2, "docdef": 1, "script": 1}, counts)
}

func TestSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveArtifacts(ctx, []models.Artifact{
		{Kind: "script", Path: "master/b_run.sh", TextContent: "echo\nPermission denied"},
		{Kind: "script", Path: "master/a_run.sh", TextContent: "nothing"},
	}))

	hits, err := store.Search(ctx, "RUN", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "master/a_run.sh", hits[0].Path)
	assert.Equal(t, "path", hits[0].Match)

	hits, err = store.Search(ctx, "permission", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "content", hits[0].Match)
	assert.Equal(t, "echo Permission denied", hits[0].Snippet)

	hits, err = store.Search(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestProcs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProc(ctx, models.ProcRecord{Name: "wccuds2", Path: "procs/wccuds2.procs", ParsedJSON: `{"cid":"wccu"}`}))
	require.NoError(t, store.SaveProc(ctx, models.ProcRecord{Name: "wccuds1", Path: "procs/wccuds1.procs", ParsedJSON: `{"v":1}`}))
	require.NoError(t, store.SaveProc(ctx, models.ProcRecord{Name: "wccuds1", Path: "procs/wccuds1.procs", ParsedJSON: `{"v":2}`}))

	content, ok, err := store.ProcContent(ctx, "wccuds1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":2}`, content)

	_, ok, err = store.ProcContent(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.ProcContents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "wccuds1", all[0].Name)

	n, err := store.CountProcs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCaseCards(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	card := &models.CaseCard{
		SourcePath:     "histories/a.md",
		ChunkID:        3,
		ContentHash:    "h1",
		Title:          "ORA-12170 on wccuds1",
		Signals:        []string{"ORA-12170"},
		VerifyCommands: []string{"grep ORA /tmp/x.log"},
	}
	outcome, err := store.SaveCaseCard(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
	assert.NotZero(t, card.ID)

	same := *card
	outcome, err = store.SaveCaseCard(ctx, &same)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome)

	changed := *card
	changed.ContentHash = "h2"
	changed.Tags = []string{"oracle"}
	outcome, err = store.SaveCaseCard(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, card.ID, changed.ID)

	cards, err := store.CaseCards(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, []string{"ORA-12170"}, cards[0].Signals)
	assert.Equal(t, []string{"oracle"}, cards[0].Tags)
	assert.Equal(t, []string{}, cards[0].RelatedFiles)
	assert.False(t, cards[0].UpdatedAt.IsZero())

	n, err := store.CountCaseCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "updated", Updated.String())
}

func TestMessageCodes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMessageCode(ctx, &models.MessageCode{Code: "PPDE7101E", Severity: "E", Body: "first", SourcePath: "b.pdf"}))
	require.NoError(t, store.SaveMessageCode(ctx, &models.MessageCode{Code: "PPDE7101E", Severity: "E", Body: "second", SourcePath: "a.pdf"}))
	require.NoError(t, store.SaveMessageCode(ctx, &models.MessageCode{Code: "PPCS8005I", Severity: "I", Title: "Started", Body: "ok", SourcePath: "a.pdf"}))
	require.NoError(t, store.SaveMessageCode(ctx, &models.MessageCode{Code: "PPCS8005I", Severity: "I", Title: "Started", Body: "replaced", SourcePath: "a.pdf"}))

	mc, err := store.MessageCode(ctx, "PPDE7101E")
	require.NoError(t, err)
	assert.Equal(t, "second", mc.Body)

	_, err = store.MessageCode(ctx, "PPXX0000F")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.MessageCodes(ctx, []string{"PPCS8005I", "PPDE7101E", "AFPR0001E"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "replaced", found["PPCS8005I"].Body)
	assert.Equal(t, "Started", found["PPCS8005I"].Title)

	empty, err := store.MessageCodes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	n, err := store.CountMessageCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGraphStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	procID, created, err := store.InsertNode(ctx, graph.Node{Type: graph.NodeProc, Key: "proc:wccuds1", DisplayName: "WCCU - Daily", CanonicalPath: "procs/wccuds1.procs", Confidence: 1})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.InsertNode(ctx, graph.Node{Type: graph.NodeProc, Key: "proc:wccuds1", DisplayName: "other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, procID, again)

	scriptID, _, err := store.InsertNode(ctx, graph.Node{Type: graph.NodeScript, Key: "script:wccuds1_process.sh", DisplayName: "wccuds1_process.sh", OriginalPath: "/home/master/wccuds1_process.sh", Confidence: 0.7})
	require.NoError(t, err)
	docID, _, err := store.InsertNode(ctx, graph.Node{Type: graph.NodeDocdef, Key: "docdef:WCCUDL014.dfa", DisplayName: "WCCUDL014.dfa"})
	require.NoError(t, err)
	otherID, _, err := store.InsertNode(ctx, graph.Node{Type: graph.NodeProc, Key: "proc:wccuds2", DisplayName: "wccuds2"})
	require.NoError(t, err)

	_, _, err = store.InsertNode(ctx, graph.Node{Type: "input", Key: "input:x"})
	assert.Error(t, err)

	ok, err := store.InsertEdge(ctx, graph.Edge{Src: procID, Dst: scriptID, RelType: graph.RelRuns, Confidence: 1,
		Evidence: &graph.Evidence{File: "procs/wccuds1.procs", LineNo: graph.Line(7), LineText: "__Shell Script: /home/master/wccuds1_process.sh"}})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.InsertEdge(ctx, graph.Edge{Src: procID, Dst: scriptID, RelType: graph.RelRuns, Confidence: 0.5})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = store.InsertEdge(ctx, graph.Edge{Src: procID, Dst: docID, RelType: graph.RelReads, Confidence: 0.7})
	require.NoError(t, err)
	_, err = store.InsertEdge(ctx, graph.Edge{Src: otherID, Dst: procID, RelType: graph.RelRefersTo, Confidence: 0.9})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgesByType["RUNS"])
	assert.Equal(t, 3, stats.TotalEdges())
	assert.Equal(t, 4, stats.TotalNodes())

	n, found, err := store.NodeByKey(ctx, "proc:wccuds1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "WCCU - Daily", n.DisplayName)
	assert.Equal(t, "", n.OriginalPath)

	_, found, err = store.NodeByID(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, found)

	t.Run("find nodes", func(t *testing.T) {
		tests := []struct {
			match   graph.KeyMatch
			pattern string
			want    []string
		}{
			{graph.MatchExact, "PROC:WCCUDS1", []string{"proc:wccuds1"}},
			{graph.MatchPrefix, "proc:wccu", []string{"proc:wccuds1", "proc:wccuds2"}},
			{graph.MatchContains, "ds2", []string{"proc:wccuds2"}},
			{graph.MatchContains, "%", nil},
		}
		for _, tt := range tests {
			nodes, err := store.FindNodes(ctx, graph.NodeProc, tt.match, tt.pattern)
			require.NoError(t, err)
			var keys []string
			for _, n := range nodes {
				keys = append(keys, n.Key)
			}
			assert.Equal(t, tt.want, keys, tt.pattern)
		}
	})

	t.Run("docdef and script joins", func(t *testing.T) {
		procs, err := store.ProcsUsingDocdef(ctx, "wccudl014")
		require.NoError(t, err)
		require.Len(t, procs, 1)
		assert.Equal(t, "proc:wccuds1", procs[0].Key)

		procs, err = store.ProcsRunningScript(ctx, "wccuds1_process.sh")
		require.NoError(t, err)
		require.Len(t, procs, 1)

		procs, err = store.ProcsRunningScript(ctx, "other.sh")
		require.NoError(t, err)
		assert.Empty(t, procs)
	})

	t.Run("neighbors", func(t *testing.T) {
		nb, err := store.Neighbors(ctx, procID)
		require.NoError(t, err)
		require.Len(t, nb.Upstream, 1)
		assert.Equal(t, "proc:wccuds2", nb.Upstream[0].Node.Key)
		assert.Equal(t, graph.RelRefersTo, nb.Upstream[0].RelType)
		require.Len(t, nb.Downstream, 2)
		assert.Equal(t, graph.RelRuns, nb.Downstream[0].RelType)
		require.NotNil(t, nb.Downstream[0].Evidence)
		assert.Equal(t, 7, *nb.Downstream[0].Evidence.LineNo)
		assert.Equal(t, 1.0, nb.Downstream[0].Confidence)
		assert.Nil(t, nb.Downstream[1].Evidence)

		targets, err := store.Targets(ctx, procID, graph.RelReads)
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, "docdef:WCCUDL014.dfa", targets[0].Node.Key)
	})

	t.Run("dump", func(t *testing.T) {
		nodes, err := store.AllNodes(ctx)
		require.NoError(t, err)
		assert.Len(t, nodes, 4)
		edges, err := store.AllEdges(ctx)
		require.NoError(t, err)
		assert.Len(t, edges, 3)
		assert.Equal(t, graph.RelRuns, edges[0].RelType)
	})
}
