package render

import "strings"

// Preserve-block delimiters. Lines matching these markers bound
// human-authored regions carried verbatim across re-renders.
const (
	preserveStart = "<!-- homer:preserve -->"
	preserveEnd   = "<!-- /homer:preserve -->"
)

// extractPreserveBlocks scans content line by line and returns, in
// order, the lines inside each top-level preserve block. A start
// marker encountered while already inside a block, or an end marker
// encountered outside one, is literal content rather than a new
// delimiter: blocks never nest.
func extractPreserveBlocks(content []byte) [][]string {
	if len(content) == 0 {
		return nil
	}

	var (
		blocks  [][]string
		current []string
		inBlock bool
	)

	for _, line := range strings.Split(string(content), "\n") {
		switch trimmed := strings.TrimSpace(line); {
		case trimmed == preserveStart && !inBlock:
			inBlock = true
			current = nil
		case trimmed == preserveEnd && inBlock:
			inBlock = false
			blocks = append(blocks, current)
		case inBlock:
			current = append(current, line)
		}
	}

	return blocks
}

// MergePreserve reinserts preserve-block bodies carried in existing
// into generated, matching blocks by their ordinal position: the Nth
// preserve block in generated's output is replaced by the Nth
// preserve block found in existing, when one exists; generated's own
// block body is kept when existing has no corresponding block (a
// freshly introduced preserve region, or a first render). A missing
// existing file (nil/empty) leaves generated untouched. Malformed or
// nested delimiters in either input are treated as literal text by
// extractPreserveBlocks, so the merge always succeeds.
func MergePreserve(existing, generated []byte) []byte {
	oldBlocks := extractPreserveBlocks(existing)
	if len(oldBlocks) == 0 {
		return generated
	}

	var (
		out      []string
		current  []string
		inBlock  bool
		blockIdx int
	)

	for _, line := range strings.Split(string(generated), "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == preserveStart && !inBlock:
			inBlock = true
			current = nil

			out = append(out, line)
		case trimmed == preserveEnd && inBlock:
			inBlock = false

			if blockIdx < len(oldBlocks) {
				out = append(out, oldBlocks[blockIdx]...)
			} else {
				out = append(out, current...)
			}

			blockIdx++

			out = append(out, line)
		case inBlock:
			current = append(current, line)
		default:
			out = append(out, line)
		}
	}

	return []byte(strings.Join(out, "\n"))
}
