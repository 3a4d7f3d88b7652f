package logparse

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	cidDirRe      = regexp.MustCompile(`/d/(\w{4})/`)
	cidDailyDirRe = regexp.MustCompile(`/d/daily/(\w{4})dn\d/`)
	baseProcRe    = regexp.MustCompile(`^(\w{4}[a-z]{2}\d)(\d{2,})?$`)

	procNameSuffixes = []string{"_process", "_msg", "_portal", "_timestamp", "_count"}
)

func stem(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CIDFromPath guesses the 4-character customer id of a log:
//
//	/d/acbk/acbkds1/sample/acbkds1.log -> acbk
//	/d/daily/aabkdn1/aabkdn1.log       -> aabk
//
// falling back to the first four characters of the file stem. It returns ""
// when nothing fits.
func CIDFromPath(path string) string {
	lower := strings.ToLower(filepath.ToSlash(path))
	if m := cidDirRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if m := cidDailyDirRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	s := strings.ToLower(stem(path))
	if len(s) >= 4 && isAlnum(s[:4]) {
		return s[:4]
	}
	return ""
}

// ProcNameFromPath derives a job name from a log file name, e.g.
// "bkfnds1122.c1bmcok.fgnrs.log" -> "bkfnds1122" and
// "acbkds1_msg_count.log" -> "acbkds1".
func ProcNameFromPath(path string) string {
	s := strings.ToLower(stem(path))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for {
		trimmed := false
		for _, suffix := range procNameSuffixes {
			if strings.HasSuffix(s, suffix) {
				s = strings.TrimSuffix(s, suffix)
				trimmed = true
				break
			}
		}
		if !trimmed {
			return s
		}
	}
}

// BaseProcName strips trailing cycle digits: "bkfnds1122" -> "bkfnds1".
// Names that do not look like cid+type+digit are returned unchanged.
func BaseProcName(name string) string {
	if m := baseProcRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
