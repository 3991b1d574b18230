package staging

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSearchNotFound is returned when a SEARCH block does not match the file.
var ErrSearchNotFound = errors.New("search block not found")

const (
	searchMarker  = "------- SEARCH"
	dividerMarker = "======="
	replaceMarker = "+++++++ REPLACE"

	legacySearch  = "<<<<<<< SEARCH"
	legacyReplace = ">>>>>>> REPLACE"
)

type block struct {
	search  string
	replace string
}

// ApplyDiff applies SEARCH/REPLACE blocks to original in order. Each SEARCH
// text must appear in the file after the end of the previous replacement.
// An empty SEARCH on an empty file replaces the whole content.
func ApplyDiff(original, diff string) (string, error) {
	blocks, err := parseBlocks(diff)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	rest := original
	for i, b := range blocks {
		if b.search == "" {
			if original != "" {
				return "", fmt.Errorf("block %d: empty search on non-empty file", i+1)
			}
			out.WriteString(b.replace)
			continue
		}
		idx := strings.Index(rest, b.search)
		if idx < 0 && strings.HasSuffix(rest, strings.TrimSuffix(b.search, "\n")) {
			// last line of the file without a trailing newline
			b.search = strings.TrimSuffix(b.search, "\n")
			b.replace = strings.TrimSuffix(b.replace, "\n")
			idx = len(rest) - len(b.search)
		}
		if idx < 0 {
			return "", fmt.Errorf("block %d: %w:\n%s", i+1, ErrSearchNotFound, b.search)
		}
		out.WriteString(rest[:idx])
		out.WriteString(b.replace)
		rest = rest[idx+len(b.search):]
	}
	out.WriteString(rest)
	return out.String(), nil
}

func parseBlocks(diff string) ([]block, error) {
	const (
		outside = iota
		inSearch
		inReplace
	)
	var (
		blocks  []block
		state   = outside
		search  []string
		replace []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(diff, "\r\n", "\n"), "\n") {
		marker := strings.TrimSpace(line)
		switch {
		case state == outside && (marker == searchMarker || marker == legacySearch):
			state, search, replace = inSearch, nil, nil
		case state == inSearch && marker == dividerMarker:
			state = inReplace
		case state == inReplace && (marker == replaceMarker || marker == legacyReplace):
			blocks = append(blocks, block{search: joinLines(search), replace: joinLines(replace)})
			state = outside
		case state == inSearch:
			search = append(search, line)
		case state == inReplace:
			replace = append(replace, line)
		}
	}
	if state != outside {
		return nil, errors.New("diff ends inside a SEARCH/REPLACE block")
	}
	if len(blocks) == 0 {
		return nil, errors.New("diff contains no SEARCH/REPLACE blocks")
	}
	return blocks, nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
