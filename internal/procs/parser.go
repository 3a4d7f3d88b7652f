// Package procs parses .procs job-definition files.
package procs

import (
	"encoding/json"
	"os"
	"path"
	"regexp"
	"strings"
)

var (
	reFirm      = regexp.MustCompile(`(?m)^Firm:\s*(.+?)(?:\s{2,}|$)`)
	reCID       = regexp.MustCompile(`(?m)^CID\s*:\s*(\w+)`)
	reAppType   = regexp.MustCompile(`(?m)(?:Application Type|Production Type):\s*(.+?)(?:\s{2,}|$)`)
	reJobID     = regexp.MustCompile(`Job ID:\s*(\S+)`)
	reLR        = regexp.MustCompile(`LR:\s*(\S+)`)
	reShell     = regexp.MustCompile(`(?im)__(?:Processing\s+)?Shell Script:\s*(/\S+)`)
	reLogFile   = regexp.MustCompile(`(?im)__Log File:\s*(/\S+)`)
	reFileSetup = regexp.MustCompile(`(?im)__File Setup Before Processing:\s*(/\S+)`)
	rePrint     = regexp.MustCompile(`(?im)Print files?:\s*(/\S+)`)
	reInputLoc  = regexp.MustCompile(`(?im)File Location:\s*(/\S+)`)
	reCrossRef  = regexp.MustCompile(`(?i)refer to\s+(/home/procs/\w+\.procs)`)
	reAbsPath   = regexp.MustCompile(`(/(?:home|d|z|download|ftpbu)/[^\s,;"'<>()]+)`)
)

const unknown = "unknown"

// Data is the structured content of one .procs file. Line numbers are
// 1-based; nil means the field was absent.
type Data struct {
	Firm    string `json:"firm"`
	CID     string `json:"cid"`
	AppType string `json:"app_type"`
	JobID   string `json:"job_id,omitempty"`
	LR      string `json:"lr,omitempty"`

	ShellScript     string `json:"shell_script,omitempty"`
	ShellScriptLine *int   `json:"shell_script_line,omitempty"`
	LogFile         string `json:"log_file,omitempty"`
	LogFileLine     *int   `json:"log_file_line,omitempty"`
	FileSetup       string `json:"file_setup,omitempty"`
	FileSetupLine   *int   `json:"file_setup_line,omitempty"`

	PrintFiles    []string `json:"print_files"`
	InputLocation string   `json:"input_location,omitempty"`
	CrossRefs     []string `json:"cross_refs"`
	AllPaths      []string `json:"all_paths"`
}

// JSON serializes d for the procs table.
func (d *Data) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON restores Data written by JSON.
func FromJSON(s string) (*Data, error) {
	d := &Data{}
	if err := json.Unmarshal([]byte(s), d); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseFile reads and parses a .procs file. An unreadable file yields
// placeholder Data, matching an empty file.
func ParseFile(p string) *Data {
	raw, err := os.ReadFile(p)
	if err != nil {
		return Parse("")
	}
	return Parse(strings.ToValidUTF8(string(raw), "�"))
}

// Parse extracts fields from .procs text.
func Parse(text string) *Data {
	d := &Data{
		Firm:       unknown,
		CID:        unknown,
		AppType:    unknown,
		PrintFiles: []string{},
		CrossRefs:  []string{},
		AllPaths:   []string{},
	}

	if m := reFirm.FindStringSubmatch(text); m != nil {
		d.Firm = strings.TrimSpace(m[1])
	}
	if m := reCID.FindStringSubmatch(text); m != nil {
		d.CID = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := reAppType.FindStringSubmatch(text); m != nil {
		d.AppType = strings.TrimSpace(m[1])
	}
	if m := reJobID.FindStringSubmatch(text); m != nil {
		d.JobID = m[1]
	}
	if m := reLR.FindStringSubmatch(text); m != nil {
		d.LR = m[1]
	}

	d.ShellScript, d.ShellScriptLine = findWithLine(reShell, text)
	d.LogFile, d.LogFileLine = findWithLine(reLogFile, text)
	d.FileSetup, d.FileSetupLine = findWithLine(reFileSetup, text)

	for _, m := range rePrint.FindAllStringSubmatch(text, -1) {
		d.PrintFiles = appendUnique(d.PrintFiles, m[1])
	}
	if m := reInputLoc.FindStringSubmatch(text); m != nil {
		d.InputLocation = m[1]
	}
	for _, m := range reCrossRef.FindAllStringSubmatch(text, -1) {
		d.CrossRefs = appendUnique(d.CrossRefs, m[1])
	}
	for _, m := range reAbsPath.FindAllStringSubmatch(text, -1) {
		p := strings.TrimRight(m[1], ".,;:)]}")
		if len(p) > 5 {
			d.AllPaths = appendUnique(d.AllPaths, p)
		}
	}
	return d
}

func findWithLine(re *regexp.Regexp, text string) (string, *int) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", nil
	}
	line := strings.Count(text[:loc[0]], "\n") + 1
	return text[loc[2]:loc[3]], &line
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Reference is a path mentioned by a job definition together with the node
// type it should become.
type Reference struct {
	Path string
	Type string
}

// Scripts returns the main shell script followed by any other script paths
// the file mentions.
func (d *Data) Scripts() (main string, others []string) {
	for _, p := range d.AllPaths {
		if p == d.ShellScript {
			continue
		}
		switch path.Ext(p) {
		case ".sh", ".pl", ".py":
			others = append(others, p)
		}
	}
	return d.ShellScript, others
}

// Resources returns referenced non-script files typed as control, docdef or
// insert. The file-setup insert is listed first when present. The input
// location is a data directory rather than a snapshot artifact and is not
// returned.
func (d *Data) Resources() []Reference {
	var refs []Reference
	if d.FileSetup != "" {
		refs = append(refs, Reference{Path: d.FileSetup, Type: "insert"})
	}
	for _, p := range d.AllPaths {
		switch {
		case strings.HasSuffix(p, ".control"):
			refs = append(refs, Reference{Path: p, Type: "control"})
		case strings.HasSuffix(p, ".dfa"):
			refs = append(refs, Reference{Path: p, Type: "docdef"})
		case strings.HasSuffix(p, ".ins") && p != d.FileSetup:
			refs = append(refs, Reference{Path: p, Type: "insert"})
		}
	}
	return refs
}

// CrossRefName returns the lowercased proc name of a cross-reference path.
func CrossRefName(ref string) string {
	base := path.Base(ref)
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}
