// Package history turns engineers' markdown session histories into case
// cards: short records of an error, its cause, the fix, and the commands
// that verified it.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/redact"
)

const (
	maxCommands      = 10
	maxCommandLength = 200
	maxFilePaths     = 20
	maxTitleLength   = 100
	maxSummaryLength = 200
)

var (
	sessionStartRe = regexp.MustCompile(`^<(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}Z-[^>]+\.md)>$`)
	sessionEndRe   = regexp.MustCompile(`^</(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}Z-[^>]+\.md)>$`)
	userTurnRe     = regexp.MustCompile(`^_\*\*User\*\*_$`)
	assistantRe    = regexp.MustCompile(`^_\*\*Assistant\*\*_$`)

	errorSignatureRes = []*regexp.Regexp{
		regexp.MustCompile(`ORA-\d{5}`),
		regexp.MustCompile(`(?i)missing file_id`),
		regexp.MustCompile(`(?i)Permission denied`),
		regexp.MustCompile(`(?i)No such file`),
		regexp.MustCompile(`(?i)timeout`),
		regexp.MustCompile(`(?i)Total number of accounts do not match`),
		regexp.MustCompile(`(?i)Error line \d+ has`),
		regexp.MustCompile(`(?i)CSV file .+ is bad`),
		regexp.MustCompile(`PP[A-Z]{2}\d{4}[EF]`),
		regexp.MustCompile(`AFPR\d{4}[EF]`),
		regexp.MustCompile(`(?i)Failed in \w+`),
		regexp.MustCompile(`(?i)Error within program`),
	}

	shellCommandRe = regexp.MustCompile(`(?m)^\s*(grep|cat|find|ls|cd|sqlplus|perl|bash|sh|wc|head|tail|awk|sed)\s+.+$`)
	filePathRe     = regexp.MustCompile(`(/[a-zA-Z0-9_/\-.]+\.(?:pl|sh|procs|dfa|control|ins|csv|txt|sql|py))`)

	rootCauseRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:root cause|причина|problem|проблема)[:\s]+(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:because|потому что)[:\s]+(.+?)(?:\n|$)`),
	}
	fixRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:fix|решение|solution)[:\s]+(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:changed|изменил|added|добавил)[:\s]+(.+?)(?:\n|$)`),
	}
)

// Chunk is a slice of a history file. Line is the zero-based index of its
// first line and doubles as the chunk id.
type Chunk struct {
	Line int
	Text string
}

// SplitChunks cuts text at session markers, user/assistant turn markers,
// level one and two headings, and runs of three blank lines. Nothing inside
// a fenced code block is a boundary. Blank chunks are dropped.
func SplitChunks(text string) []Chunk {
	var (
		chunks  []Chunk
		current []string
		start   int
		blanks  int
		inCode  bool
	)
	flush := func() {
		body := strings.Join(current, "\n")
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{Line: start, Text: body})
		}
	}

	for i, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
		}

		boundary := false
		if !inCode {
			switch {
			case sessionStartRe.MatchString(line), sessionEndRe.MatchString(line):
				boundary = true
			case userTurnRe.MatchString(line), assistantRe.MatchString(line):
				boundary = true
			case strings.HasPrefix(line, "# "), strings.HasPrefix(line, "## "):
				boundary = true
			case strings.TrimSpace(line) == "":
				blanks++
				boundary = blanks >= 3
			default:
				blanks = 0
			}
		}

		if boundary && len(current) > 0 {
			flush()
			current = nil
			start = i
			blanks = 0
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}

// ParseChunk extracts a case card from one chunk. It reports false when the
// chunk has no error signature, command or file path.
func ParseChunk(text string, chunkID int, source string, redactPII bool) (models.CaseCard, bool) {
	text = redact.If(text, redactPII)

	sigs := ErrorSignatures(text)
	commands := ShellCommands(text)
	files := FilePaths(text)
	if len(sigs) == 0 && len(commands) == 0 && len(files) == 0 {
		return models.CaseCard{}, false
	}

	card := models.CaseCard{
		SourcePath:     source,
		ChunkID:        chunkID,
		ContentHash:    ContentHash(text),
		Title:          Title(text),
		Signals:        sigs,
		VerifyCommands: commands,
		RelatedFiles:   files,
		RootCause:      firstCapture(rootCauseRes, text),
		FixSummary:     firstCapture(fixRes, text),
		Tags:           Tags(sigs, files),
	}
	return card, true
}

// ParseFile reads one history file. Invalid UTF-8 is replaced.
func ParseFile(path string, redactPII bool) ([]models.CaseCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "read history %s", path)
	}
	text := strings.ToValidUTF8(string(data), "\uFFFD")

	var cards []models.CaseCard
	for _, c := range SplitChunks(text) {
		if card, ok := ParseChunk(c.Text, c.Line, path, redactPII); ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// ParseDir parses every file in dir matching pattern, or *.txt and *.md
// when pattern is empty. Files are visited in lexical order.
func ParseDir(dir, pattern string, redactPII bool) ([]models.CaseCard, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.FileSystemErrorf(err, "history directory %s", dir)
	}
	globs := []string{"*.txt", "*.md"}
	if pattern != "" {
		globs = []string{pattern}
	}

	var files []string
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, g))
		if err != nil {
			return nil, errors.ValidationErrorf("bad glob %q: %v", g, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
			}
		}
	}

	var cards []models.CaseCard
	for _, f := range files {
		got, err := ParseFile(f, redactPII)
		if err != nil {
			return nil, err
		}
		cards = append(cards, got...)
	}
	return cards, nil
}

// ContentHash is the first 16 hex digits of the SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// ErrorSignatures lists known error strings in text, first occurrence
// order within each pattern, patterns in fixed order.
func ErrorSignatures(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, re := range errorSignatureRes {
		for _, m := range re.FindAllString(text, -1) {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// ShellCommands lists up to ten distinct command lines.
func ShellCommands(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range shellCommandRe.FindAllString(text, -1) {
		cmd := truncate(strings.TrimSpace(m), maxCommandLength)
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		out = append(out, cmd)
		if len(out) == maxCommands {
			break
		}
	}
	return out
}

// FilePaths lists up to twenty distinct absolute paths of job-related files.
func FilePaths(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range filePathRe.FindAllStringSubmatch(text, -1) {
		p := strings.TrimRight(m[1], ".,;:)]}")
		if len(p) <= 5 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) == maxFilePaths {
			break
		}
	}
	return out
}

// Title is the first markdown heading within the first five lines, or else
// the first short plain line within the first three.
func Title(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for _, line := range lines[:min(5, len(lines))] {
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return truncateRunes(t, maxTitleLength)
			}
		}
	}
	for _, line := range lines[:min(3, len(lines))] {
		line = strings.TrimSpace(line)
		if line == "" || len([]rune(line)) >= maxTitleLength {
			continue
		}
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "---") || strings.HasPrefix(line, "_**") {
			continue
		}
		return line
	}
	return ""
}

// Tags labels a card by technology.
func Tags(sigs, files []string) []string {
	tags := []string{}
	if anyContains(sigs, "ORA-", false) {
		tags = append(tags, "oracle")
	}
	if anyContains(files, ".pl", false) {
		tags = append(tags, "perl")
	}
	if anyContains(files, ".sh", false) {
		tags = append(tags, "shell")
	}
	if anyContains(files, ".dfa", false) {
		tags = append(tags, "docdef")
	}
	if anyContains(sigs, "csv", true) {
		tags = append(tags, "csv")
	}
	return tags
}

func anyContains(list []string, sub string, fold bool) bool {
	for _, s := range list {
		if fold {
			s = strings.ToLower(s)
		}
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstCapture(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return truncateRunes(strings.TrimSpace(m[1]), maxSummaryLength)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
