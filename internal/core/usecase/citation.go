package usecase

import (
	"regexp"
	"sort"
	"strconv"
)

var bracketedIndex = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitedIndices collects the distinct 1-based source indices the model
// actually cited in its answer, e.g. {1,2} from "voir [1] et [2]". Markdown
// links ("[text](url)") and indices glued to a word ("foo[1]") do not count;
// nested brackets ("[[1]]") count once. Out-of-range filtering is the
// caller's job since only it knows how many sources were offered.
func ExtractCitedIndices(answer string) []int {
	matches := bracketedIndex.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && isWordByte(answer[start-1]) {
			continue
		}
		if end < len(answer) && answer[end] == '(' {
			continue
		}
		n, err := strconv.Atoi(answer[m[2]:m[3]])
		if err != nil {
			continue
		}
		seen[n] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// FilterCitedIndices drops indices outside [1, sourceCount]; the model is
// never allowed to invent a citation.
func FilterCitedIndices(indices []int, sourceCount int) []int {
	out := make([]int, 0, len(indices))
	for _, n := range indices {
		if n >= 1 && n <= sourceCount {
			out = append(out, n)
		}
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
