package kb

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rohankatakam/jobtriage/internal/errors"
	"github.com/rohankatakam/jobtriage/internal/logging"
)

var pageFileRe = regexp.MustCompile(`(?i)page_(\d+)`)

// PDFText extracts the text of every page of a PDF, pages separated by a
// form feed. pdfcpu dumps each page's content stream; the text-showing
// operators in those streams are decoded here.
func PDFText(path string) (string, error) {
	logger := logging.Component("kb")

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", errors.ParseErrorf(err, "read pdf %s", path)
	}

	outDir, err := os.MkdirTemp("", "jtriage-pdf-")
	if err != nil {
		return "", errors.FileSystemError(err, "create temp dir")
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", errors.ParseErrorf(err, "extract pdf content %s", path)
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return "", errors.FileSystemError(err, "read extracted pages")
	}
	pages := map[int]string{}
	for _, f := range files {
		m := pageFileRe.FindStringSubmatch(f.Name())
		if f.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			return "", errors.FileSystemErrorf(err, "read page %d", n)
		}
		pages[n] += StreamText(string(data))
	}

	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var b strings.Builder
	for i, n := range nums {
		if i > 0 {
			b.WriteString("\f")
		}
		b.WriteString(pages[n])
	}
	logger.Debug("pdf text extracted", "path", path, "pages", pdfCtx.PageCount, "with_text", len(nums))
	return b.String(), nil
}

// StreamText decodes the strings shown by Tj, TJ, ' and " in a PDF content
// stream. Line-moving operators start a new line. Strings are read as
// PDFDocEncoding (Latin-1) unless they carry a UTF-16BE byte order mark.
func StreamText(stream string) string {
	var (
		b       strings.Builder
		pending []string
	)
	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			s, n := readLiteral(stream[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(stream) && stream[i+1] == '<':
			i += 2
		case c == '<':
			s, n := readHex(stream[i:])
			pending = append(pending, s)
			i += n
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case isSpace(c) || strings.IndexByte("[]{}>", c) >= 0:
			i++
		case c == '/':
			i++
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
		default:
			start := i
			for i < len(stream) && !isSpace(stream[i]) && !isDelim(stream[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := stream[start:i]
			if isOperand(tok) {
				continue
			}
			switch tok {
			case "Tj", "TJ":
				b.WriteString(strings.Join(pending, ""))
			case "'", `"`:
				newline()
				b.WriteString(strings.Join(pending, ""))
			case "T*", "Td", "TD", "ET":
				newline()
			}
			pending = nil
		}
	}
	newline()
	return b.String()
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isOperand(tok string) bool {
	if tok == "true" || tok == "false" || tok == "null" {
		return true
	}
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

// readLiteral reads a (...) string with nested parentheses and escapes and
// returns the decoded text and the bytes consumed.
func readLiteral(s string) (string, int) {
	var out []byte
	depth := 0
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch e := s[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					j := i
					for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
						j++
					}
					v, _ := strconv.ParseUint(s[i:j], 8, 8)
					out = append(out, byte(v))
					i = j - 1
				} else {
					out = append(out, e)
				}
			}
		case c == '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return decodePDFString(out), i + 1
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
		i++
	}
	return decodePDFString(out), len(s)
}

// readHex reads a <...> string.
func readHex(s string) (string, int) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		end = len(s) - 1
	}
	var digits []byte
	for _, c := range []byte(s[1:end]) {
		if !isSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			break
		}
		out = append(out, byte(v))
	}
	return decodePDFString(out), end + 1
}

func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		u := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// LoadText reads a manual: PDFs through PDFText, anything else as plain
// text.
func LoadText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return PDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.FileSystemErrorf(err, "read %s", path)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// FindSource picks the manual to import: explicit when given (it must
// exist), otherwise the first PDF under <snapshot>/refs/papyrus.
func FindSource(snapshot, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.FileSystemErrorf(err, "message code source %s", explicit)
		}
		return explicit, nil
	}
	matches, _ := filepath.Glob(filepath.Join(snapshot, "refs", "papyrus", "*.pdf"))
	if len(matches) == 0 {
		return "", errors.ValidationError(fmt.Sprintf("no message code manual found under %s", filepath.Join(snapshot, "refs", "papyrus")))
	}
	sort.Strings(matches)
	return matches[0], nil
}
