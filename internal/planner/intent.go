package planner

import (
	"regexp"
	"strings"
)

var (
	titleCIDRe    = regexp.MustCompile(`\b([A-Z]{4})\b`)
	titleLetterRe = regexp.MustCompile(`(?i)(?:Letter\s*|DL)(\d{2,3})\b`)
	tokenSplitRe  = regexp.MustCompile(`[^A-Za-z0-9]+`)
	phraseTrimRe  = regexp.MustCompile(`^[\s\-–—:,]+|[\s\-–—:,]+$`)
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "has": true,
	"have": true, "had": true, "not": true, "but": true, "its": true,
	"our": true, "all": true, "new": true, "update": true, "letter": true,
	"monthly": true, "daily": true, "weekly": true, "run": true, "job": true,
}

// Intent is what the caller is looking for. Empty strings mean unknown.
type Intent struct {
	CID          string   `json:"cid"`
	JobID        string   `json:"job_id"`
	LetterNumber string   `json:"letter_number"` // three digits, e.g. "014"
	Keywords     []string `json:"keywords"`
	RawTitle     string   `json:"raw_title"`
}

// ParseTitle extracts the customer id (first 4-letter uppercase word,
// lowercased), the letter number ("Letter 14" or "DL014", padded to three
// digits) and keywords from a free-text title.
func ParseTitle(title string) (cid, letter string, keywords []string) {
	if m := titleCIDRe.FindStringSubmatch(title); m != nil {
		cid = strings.ToLower(m[1])
	}
	if m := titleLetterRe.FindStringSubmatch(title); m != nil {
		letter = m[1]
		if len(letter) < 3 {
			letter = strings.Repeat("0", 3-len(letter)) + letter
		}
	}
	keywords = []string{}
	for _, tok := range tokenSplitRe.Split(title, -1) {
		tok = strings.ToLower(tok)
		if len(tok) >= 3 && !stopwords[tok] {
			keywords = append(keywords, tok)
		}
	}
	return cid, letter, keywords
}

// BuildIntent merges explicit identifiers with what the title yields.
// Explicit values always win.
func BuildIntent(cid, jobID, title string) Intent {
	intent := Intent{Keywords: []string{}, RawTitle: title}
	if title != "" {
		intent.CID, intent.LetterNumber, intent.Keywords = ParseTitle(title)
	}
	if cid = strings.TrimSpace(cid); cid != "" {
		intent.CID = strings.ToLower(cid)
	}
	intent.JobID = strings.ToLower(strings.TrimSpace(jobID))
	return intent
}

// TitlePhrase is the distinctive part of a title: the title without its
// first customer-id token and first letter marker, trimmed of surrounding
// whitespace, dashes, colons and commas.
//
//	"WCCU Letter 14 - Business Rate/Payment Change Notice"
//	  -> "Business Rate/Payment Change Notice"
func TitlePhrase(title string) string {
	s := replaceFirst(titleCIDRe, title)
	s = replaceFirst(titleLetterRe, s)
	s = phraseTrimRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}

// FamilyPrefix derives the job family shared by sibling procs: trailing
// digits are stripped ("wccuds1" -> "wccuds"), otherwise one trailing
// variant letter ("wccudla" -> "wccudl"). Names of four characters or fewer
// are their own family.
func FamilyPrefix(name string) string {
	if len(name) <= 4 {
		return name
	}
	stripped := strings.TrimRight(name, "0123456789")
	if stripped != name && len(stripped) >= 5 {
		return stripped
	}
	if len(name) > 5 {
		return name[:len(name)-1]
	}
	return name
}
