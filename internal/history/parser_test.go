package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/jobtriage/internal/storage"
)

const sampleHistory = `<2024-03-01_10-15Z-wccu-letters.md>
_**User**_
The WCCU letter job aborted with ORA-12170 and Permission denied on /home/insert/wccudla.ins.

_**Assistant**_
Root cause: the insert file was owned by the wrong user
Fix: chown the insert and rerun
` + "```" + `
# inside a fence, not a boundary
ls -la /home/insert/wccudla.ins
` + "```" + `
grep ORA- /home/keep/wccudla.log
grep ORA- /home/keep/wccudla.log
</2024-03-01_10-15Z-wccu-letters.md>

## Notes
just prose here



trailing section mentions PPDE1001E in /home/docdef/WCCUDL014.dfa
`

func TestSplitChunks(t *testing.T) {
	chunks := SplitChunks(sampleHistory)

	var starts []int
	for _, c := range chunks {
		starts = append(starts, c.Line)
	}
	assert.Equal(t, []int{0, 1, 4, 13, 15, 19}, starts)
	assert.Contains(t, chunks[2].Text, "# inside a fence, not a boundary")
	assert.True(t, strings.HasPrefix(chunks[3].Text, "</2024-03-01"))
	assert.Empty(t, SplitChunks("\n\n  \n"))
}

func TestParseChunk(t *testing.T) {
	chunks := SplitChunks(sampleHistory)

	_, ok := ParseChunk(chunks[0].Text, chunks[0].Line, "h.md", false)
	assert.False(t, ok, "session marker alone has nothing useful")

	user, ok := ParseChunk(chunks[1].Text, chunks[1].Line, "h.md", false)
	require.True(t, ok)
	assert.Equal(t, []string{"ORA-12170", "Permission denied"}, user.Signals)
	assert.Equal(t, []string{"/home/insert/wccudla.ins"}, user.RelatedFiles)
	assert.Equal(t, []string{"oracle"}, user.Tags)
	assert.Equal(t, "The WCCU letter job aborted with ORA-12170 and Permission denied on /home/insert/wccudla.ins.", user.Title)

	asst, ok := ParseChunk(chunks[2].Text, chunks[2].Line, "h.md", false)
	require.True(t, ok)
	assert.Equal(t, 4, asst.ChunkID)
	assert.Equal(t, "the insert file was owned by the wrong user", asst.RootCause)
	assert.Equal(t, "chown the insert and rerun", asst.FixSummary)
	assert.Equal(t, []string{
		"ls -la /home/insert/wccudla.ins",
		"grep ORA- /home/keep/wccudla.log",
	}, asst.VerifyCommands)
	assert.Equal(t, "inside a fence, not a boundary", asst.Title)
	assert.Len(t, asst.ContentHash, 16)

	tail, ok := ParseChunk(chunks[5].Text, chunks[5].Line, "h.md", false)
	require.True(t, ok)
	assert.Equal(t, []string{"PPDE1001E"}, tail.Signals)
	assert.Equal(t, []string{"docdef"}, tail.Tags)
}

func TestParseChunkRedacts(t *testing.T) {
	text := "Permission denied for ops@example.com on acct 123456789012"
	card, ok := ParseChunk(text, 0, "x.md", true)
	require.True(t, ok)
	assert.Equal(t, "Permission denied for [EMAIL] on acct [ACCT]", card.Title)

	plain, _ := ParseChunk(text, 0, "x.md", false)
	assert.NotEqual(t, card.ContentHash, plain.ContentHash)
}

func TestExtractors(t *testing.T) {
	t.Run("signatures are deduplicated", func(t *testing.T) {
		got := ErrorSignatures("ORA-00001 then ORA-00001, CSV file a.csv is bad, Failed in step3, timeout")
		assert.Equal(t, []string{"ORA-00001", "timeout", "CSV file a.csv is bad", "Failed in step3"}, got)
	})

	t.Run("commands are capped", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 15; i++ {
			b.WriteString("cat /tmp/file" + strings.Repeat("x", i) + "\n")
		}
		b.WriteString("cat " + strings.Repeat("y", 300) + "\n")
		got := ShellCommands(b.String())
		assert.Len(t, got, maxCommands)
		assert.Equal(t, []string{"sed -n 1p a.txt"}, ShellCommands("  sed -n 1p a.txt  "))
		assert.Empty(t, ShellCommands("echo hi"))
	})

	t.Run("paths are trimmed", func(t *testing.T) {
		got := FilePaths("see /home/master/a.sh, and (/home/procs/wccuds1.procs) or /a.pl")
		assert.Equal(t, []string{"/home/master/a.sh", "/home/procs/wccuds1.procs"}, got)
	})

	t.Run("tags", func(t *testing.T) {
		got := Tags([]string{"ORA-00942", "CSV file x is bad"}, []string{"/m/a.pl", "/m/b.sh", "/d/X.dfa"})
		assert.Equal(t, []string{"oracle", "perl", "shell", "docdef", "csv"}, got)
	})

	t.Run("title", func(t *testing.T) {
		assert.Equal(t, "Overdraft letters", Title("\n## Overdraft letters\ntext"))
		assert.Equal(t, "plain first line", Title("```\nplain first line"))
		assert.Equal(t, "", Title("---\n_**User**_x\n"+strings.Repeat("z", 120)))
	})
}

func TestParseDirAndImport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte(sampleHistory), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("grep PPCS1234E /home/keep/x.log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.log"), []byte("ORA-12170\n"), 0o644))

	cards, err := ParseDir(dir, "", false)
	require.NoError(t, err)
	require.Len(t, cards, 4)
	assert.Equal(t, filepath.Join(dir, "b.txt"), cards[0].SourcePath, "*.txt files come first")

	logs, err := ParseDir(dir, "*.log", false)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = ParseDir(filepath.Join(dir, "missing"), "", false)
	assert.Error(t, err)

	store, err := storage.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	stats, err := Import(ctx, store, cards)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Inserted: 4}, stats)

	again, err := ParseDir(dir, "", false)
	require.NoError(t, err)
	stats, err = Import(ctx, store, again)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Unchanged: 4}, stats)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("grep PPCS9999E /home/keep/x.log\n"), 0o644))
	again, err = ParseDir(dir, "", false)
	require.NoError(t, err)
	stats, err = Import(ctx, store, again)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Updated: 1, Unchanged: 3}, stats)
}
