package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// HeaderTag starts the first line of a flat file: "PNSV <schema> <build>".
const HeaderTag = "PNSV"

// FormatVersion is the flat-file layout revision this package writes.
const FormatVersion = 1

// ErrFormatTooNew is returned when a file was written by a newer layout revision.
var ErrFormatTooNew = errors.New("flat file format is newer than this build supports")

// Header describes a flat file.
type Header struct {
	Format int
	Build  string
}

const emptyWord = "*"

func word(s string) string {
	if s == "" {
		return emptyWord
	}
	return s
}

func unword(s string) string {
	if s == emptyWord {
		return ""
	}
	return s
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func unixTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// Encode writes rows in the flat-file line format. Every field before a row's free-text
// tail is one space-separated word, so a field holding a space, or any field holding a
// line break, fails the encode rather than producing a file Decode would misread.
func Encode(w io.Writer, h Header, rows []Row) error {
	bw := bufio.NewWriter(w)
	if h.Format == 0 {
		h.Format = FormatVersion
	}
	if strings.ContainsAny(h.Build, " \r\n") {
		return fmt.Errorf("build %q cannot be written to the header", h.Build)
	}
	fmt.Fprintf(bw, "%s %d %s\n", HeaderTag, h.Format, word(h.Build))

	for _, row := range rows {
		var (
			words   []string
			text    string
			hasText bool
		)
		switch r := row.(type) {
		case ProjectRow:
			words = []string{r.Name, flag(r.OpenRegistration), unixTime(r.CreatedAt), word(r.Creator),
				strconv.FormatUint(uint64(r.LastMark), 10)}
		case RegInfoRow:
			words, text, hasText = []string{r.ProjectName}, r.Text, true
		case MarkRow:
			words = []string{r.ProjectName, strconv.FormatUint(uint64(r.Number), 10),
				unixTime(r.Time), word(r.SetterID), word(r.SetterName)}
			text, hasText = r.Text, true
		case ContactRow:
			words = []string{r.ProjectName, r.Account, flag(r.Visible), flag(r.Secondary)}
		case ChannelNSRow:
			words = []string{r.ProjectName, r.Namespace}
		case CloakNSRow:
			words = []string{r.ProjectName, r.Namespace}
		default:
			return fmt.Errorf("cannot encode row type %T", row)
		}

		for _, wd := range words {
			if wd == "" || strings.ContainsAny(wd, " \t") {
				return fmt.Errorf("%s row for %s has an empty or space-separated field %q", row.Type(), row.Project(), wd)
			}
		}
		line := string(row.Type()) + " " + strings.Join(words, " ")
		if hasText {
			line += " " + text
		}
		if strings.ContainsAny(line, "\r\n") {
			return fmt.Errorf("%s row for %s contains a line break", row.Type(), row.Project())
		}
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Decode reads a flat file. Lines with unknown tags are logged and ignored; malformed
// lines fail the whole decode with their line number.
func Decode(r io.Reader) (Header, []Row, error) {
	var (
		h    Header
		rows []Row
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		tag, rest, _ := strings.Cut(line, " ")

		if lineNo == 1 && tag == HeaderTag {
			parsed, err := parseHeader(rest)
			if err != nil {
				return h, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			h = parsed
			continue
		}

		row, err := decodeRow(RowType(tag), rest)
		if err != nil {
			return h, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if row == nil {
			slog.Warn("ignoring unknown row type", "line", lineNo, "type", tag)
			continue
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return h, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return h, rows, nil
}

func parseHeader(rest string) (Header, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Header{}, fmt.Errorf("header without format version")
	}
	format, err := strconv.Atoi(fields[0])
	if err != nil {
		return Header{}, fmt.Errorf("invalid format version %q", fields[0])
	}
	if format > FormatVersion {
		return Header{}, fmt.Errorf("%w (%d > %d)", ErrFormatTooNew, format, FormatVersion)
	}
	h := Header{Format: format}
	if len(fields) > 1 {
		h.Build = unword(fields[1])
	}
	return h, nil
}

// splitWords takes n space-separated words from s and returns the remainder as a
// free-text tail.
func splitWords(s string, n int) ([]string, string) {
	words := make([]string, 0, n)
	for len(words) < n {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			break
		}
		w, rest, _ := strings.Cut(s, " ")
		words = append(words, w)
		s = rest
	}
	return words, s
}

func parseFlag(s string) (bool, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return false, fmt.Errorf("invalid flag %q", s)
	}
	return v != 0, nil
}

func parseTime(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	if v == 0 {
		return time.Time{}, nil
	}
	return time.Unix(v, 0).UTC(), nil
}

func decodeRow(tag RowType, rest string) (Row, error) {
	switch tag {
	case TypeProject:
		w, _ := splitWords(rest, 5)
		if len(w) < 2 {
			return nil, fmt.Errorf("%s: expected at least 2 fields", tag)
		}
		open, err := parseFlag(w[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		row := ProjectRow{Name: w[0], OpenRegistration: open}
		if len(w) > 2 {
			if row.CreatedAt, err = parseTime(w[2]); err != nil {
				return nil, fmt.Errorf("%s: %w", tag, err)
			}
		}
		if len(w) > 3 {
			row.Creator = unword(w[3])
		}
		if len(w) > 4 {
			last, err := strconv.ParseUint(w[4], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid last mark %q", tag, w[4])
			}
			row.LastMark = uint(last)
		}
		return row, nil

	case TypeRegInfo:
		w, text := splitWords(rest, 1)
		if len(w) < 1 {
			return nil, fmt.Errorf("%s: missing project", tag)
		}
		return RegInfoRow{ProjectName: w[0], Text: text}, nil

	case TypeMark:
		w, text := splitWords(rest, 5)
		if len(w) < 5 {
			return nil, fmt.Errorf("%s: expected 5 fields and text", tag)
		}
		num, err := strconv.ParseUint(w[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid mark number %q", tag, w[1])
		}
		ts, err := parseTime(w[2])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return MarkRow{ProjectName: w[0], Number: uint(num), Time: ts, SetterID: unword(w[3]), SetterName: unword(w[4]), Text: text}, nil

	case TypeContact:
		w, _ := splitWords(rest, 4)
		if len(w) < 2 {
			return nil, fmt.Errorf("%s: expected at least 2 fields", tag)
		}
		row := ContactRow{ProjectName: w[0], Account: w[1]}
		var err error
		if len(w) > 2 {
			if row.Visible, err = parseFlag(w[2]); err != nil {
				return nil, fmt.Errorf("%s: %w", tag, err)
			}
		}
		if len(w) > 3 {
			if row.Secondary, err = parseFlag(w[3]); err != nil {
				return nil, fmt.Errorf("%s: %w", tag, err)
			}
		}
		return row, nil

	case TypeChannelNS, TypeCloakNS:
		w, _ := splitWords(rest, 2)
		if len(w) < 2 {
			return nil, fmt.Errorf("%s: expected 2 fields", tag)
		}
		if tag == TypeChannelNS {
			return ChannelNSRow{ProjectName: w[0], Namespace: w[1]}, nil
		}
		return CloakNSRow{ProjectName: w[0], Namespace: w[1]}, nil
	}
	return nil, nil
}
