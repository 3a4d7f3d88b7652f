package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/planner"
)

var planStrings = map[string]map[string]string{
	"en": {
		"parsed_intent":       "PARSED INTENT",
		"cid":                 "CID",
		"job_id":              "Job ID",
		"letter_number":       "Letter number",
		"keywords":            "Keywords",
		"raw_title":           "Raw title",
		"selected_bundle":     "SELECTED BUNDLE",
		"bundle_candidates":   "BUNDLE CANDIDATES",
		"files_to_open":       "FILES TO OPEN",
		"other_candidates":    "OTHER CANDIDATES",
		"no_matching_procs":   "(no matching procs found)",
		"no_files":            "(no files)",
		"files":               "files",
		"prompt_title":        "jtriage Bundle Plan",
		"prompt_intro":        "Analysis of a legacy Papyrus/DocExec bundle. Use ONLY files from the snapshot root below.",
		"prompt_instructions": "Instructions",
		"prompt_step_1":       "Open files from `selected_bundle.files` (abs_path).",
		"prompt_step_2":       "Explain where the letter is defined and which files are involved.",
		"prompt_step_3":       "Suggest minimal edits with code quotes.",
		"prompt_step_4":       "Create an edit plan with exact code quotes.",
		"prompt_step_5":       "Provide a verification checklist.",
		"prompt_step_6":       "Prepare a ticket-ready change request.",
		"prompt_step_7":       "Be concise.",
		"prompt_data":         "Plan data",
	},
	"ru": {
		"parsed_intent":       "РАЗОБРАННОЕ НАМЕРЕНИЕ",
		"cid":                 "CID",
		"job_id":              "Job ID",
		"letter_number":       "Номер письма",
		"keywords":            "Ключевые слова",
		"raw_title":           "Исходный заголовок",
		"selected_bundle":     "ВЫБРАННЫЙ ПАКЕТ",
		"bundle_candidates":   "КАНДИДАТЫ",
		"files_to_open":       "ФАЙЛЫ ДЛЯ ОТКРЫТИЯ",
		"other_candidates":    "ОСТАЛЬНЫЕ КАНДИДАТЫ",
		"no_matching_procs":   "(подходящие proc не найдены)",
		"no_files":            "(нет файлов)",
		"files":               "файлов",
		"prompt_title":        "jtriage: план пакета",
		"prompt_intro":        "Анализ legacy Papyrus/DocExec пакета. Используй ТОЛЬКО файлы из snapshot root ниже.",
		"prompt_instructions": "Инструкции",
		"prompt_step_1":       "Открой файлы из `selected_bundle.files` (abs_path).",
		"prompt_step_2":       "Объясни, где определено письмо (letter) и какие файлы участвуют.",
		"prompt_step_3":       "Предложи минимальные правки с цитатами из кода.",
		"prompt_step_4":       "Составь план изменений (edit plan) с точными цитатами.",
		"prompt_step_5":       "Дай checklist для верификации.",
		"prompt_step_6":       "Подготовь change request для тикета.",
		"prompt_step_7":       "Отвечай кратко.",
		"prompt_data":         "Данные плана",
	},
}

// Languages lists the supported plan output languages.
func Languages() []string { return []string{"en", "ru"} }

// tr looks up key in lang, falling back to English and then to the key.
func tr(lang, key string) string {
	if s, ok := planStrings[lang][key]; ok {
		return s
	}
	if s, ok := planStrings["en"][key]; ok {
		return s
	}
	return key
}

// PlanReport is a bundle plan ready for rendering.
type PlanReport struct {
	SnapshotRoot string
	Result       planner.Result
	Lang         string
	// Debug adds per-rule score breakdowns to the text output.
	Debug bool
	// ShowAll prints full detail for every candidate instead of only the winner.
	ShowAll bool
}

func (r *PlanReport) abs(rel string) string {
	return filepath.Join(r.SnapshotRoot, filepath.FromSlash(rel))
}

// WritePlan renders r in format f.
func WritePlan(w io.Writer, r *PlanReport, f Format) error {
	switch f {
	case FormatText, "":
		_, err := io.WriteString(w, PlanText(r)+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(PlanJSON(r))
	case FormatPrompt:
		s, err := PlanPrompt(r)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s+"\n")
		return err
	}
	return fmt.Errorf("unknown output format %q", f)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// PlanText renders the plan for a terminal.
func PlanText(r *PlanReport) string {
	var lines []string
	add := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }
	header := func(key string, count ...int) {
		if len(count) > 0 {
			add("═══ %s (%d) ═══", tr(r.Lang, key), count[0])
			return
		}
		add("═══ %s ═══", tr(r.Lang, key))
	}
	label := func(key string) string { return fmt.Sprintf("%-16s", tr(r.Lang, key)+":") }

	in := r.Result.Intent
	header("parsed_intent")
	add("  %s%s", label("cid"), orNone(in.CID))
	add("  %s%s", label("job_id"), orNone(in.JobID))
	add("  %s%s", label("letter_number"), orNone(in.LetterNumber))
	if len(in.Keywords) > 0 {
		add("  %s%s", label("keywords"), strings.Join(in.Keywords, ", "))
	}
	if in.RawTitle != "" {
		add("  %s%s", label("raw_title"), in.RawTitle)
	}
	add("")

	cands := r.Result.Candidates
	if len(cands) == 0 {
		header("bundle_candidates", 0)
		add("  %s", tr(r.Lang, "no_matching_procs"))
		add("")
		header("files_to_open")
		add("  %s", tr(r.Lang, "no_files"))
		return strings.Join(lines, "\n")
	}

	detail := func(rank int, c planner.Candidate) {
		add("  #%d  %s  [%s]  score=%.0f", rank, c.Key, c.DisplayName, c.Score)
		if r.Debug {
			for _, item := range c.Breakdown {
				add("       +%.0f  %s", item.Points, item.Rule)
			}
		}
		add("       %s: %d", tr(r.Lang, "files"), len(c.Files))
		for _, f := range c.Files {
			add("         %-8s  %s  (%s)", f.Kind, f.Path, f.Source)
		}
		add("")
	}

	top := cands[0]
	if r.ShowAll {
		header("bundle_candidates", len(cands))
		for i, c := range cands {
			detail(i+1, c)
		}
		add("")
	} else {
		header("selected_bundle")
		detail(1, top)
	}

	header("files_to_open")
	for _, f := range top.Files {
		add("  %s", r.abs(f.Path))
	}

	if !r.ShowAll && len(cands) > 1 {
		add("")
		header("other_candidates", len(cands)-1)
		for i, c := range cands[1:] {
			add("  #%d  %s  [%s]  score=%.0f  %s=%d", i+2, c.Key, c.DisplayName, c.Score, tr(r.Lang, "files"), len(c.Files))
		}
	}
	return strings.Join(lines, "\n")
}

type planFileJSON struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	AbsPath string `json:"abs_path"`
	Reason  string `json:"reason"`
}

type selectedBundleJSON struct {
	Rank        int            `json:"rank"`
	Key         string         `json:"key"`
	DisplayName string         `json:"display_name"`
	Score       int            `json:"score"`
	Files       []planFileJSON `json:"files"`
}

type otherCandidateJSON struct {
	Rank        int    `json:"rank"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	FileCount   int    `json:"file_count"`
}

// PlanDocument is the machine-readable plan.
type PlanDocument struct {
	SnapshotRoot   string               `json:"snapshot_root"`
	Intent         planner.Intent       `json:"intent"`
	SelectedBundle *selectedBundleJSON  `json:"selected_bundle"`
	Others         []otherCandidateJSON `json:"other_candidates_summary"`
}

// PlanJSON builds the machine-readable plan.
func PlanJSON(r *PlanReport) PlanDocument {
	doc := PlanDocument{
		SnapshotRoot: r.SnapshotRoot,
		Intent:       r.Result.Intent,
		Others:       []otherCandidateJSON{},
	}
	if doc.Intent.Keywords == nil {
		doc.Intent.Keywords = []string{}
	}
	cands := r.Result.Candidates
	if len(cands) == 0 {
		return doc
	}

	top := cands[0]
	sel := &selectedBundleJSON{
		Rank:        1,
		Key:         top.Key,
		DisplayName: top.DisplayName,
		Score:       int(top.Score),
		Files:       make([]planFileJSON, 0, len(top.Files)),
	}
	for _, f := range top.Files {
		sel.Files = append(sel.Files, planFileJSON{Kind: f.Kind, Path: f.Path, AbsPath: r.abs(f.Path), Reason: f.Source})
	}
	doc.SelectedBundle = sel

	for i, c := range cands[1:] {
		doc.Others = append(doc.Others, otherCandidateJSON{
			Rank:        i + 2,
			Key:         c.Key,
			DisplayName: c.DisplayName,
			Score:       int(c.Score),
			FileCount:   len(c.Files),
		})
	}
	return doc
}

// PlanPrompt renders a Markdown prompt for an editor agent with the JSON
// plan embedded.
func PlanPrompt(r *PlanReport) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(PlanJSON(r)); err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}

	sections := []string{
		"# " + tr(r.Lang, "prompt_title"),
		"",
		tr(r.Lang, "prompt_intro"),
		"",
		"## " + tr(r.Lang, "prompt_instructions"),
		"",
	}
	for i := 1; i <= 7; i++ {
		sections = append(sections, fmt.Sprintf("%d. %s", i, tr(r.Lang, fmt.Sprintf("prompt_step_%d", i))))
	}
	sections = append(sections,
		"",
		"## "+tr(r.Lang, "prompt_data"),
		"",
		"```json",
		strings.TrimRight(buf.String(), "\n"),
		"```",
		"",
		fmt.Sprintf("Snapshot root: `%s`", r.SnapshotRoot),
	)
	return strings.Join(sections, "\n"), nil
}
