package printer

import (
	"fmt"
	"strings"
)

// LineWidth is the character width of a standard dot-matrix line.
const LineWidth = 80

func clip(s string, width int) []rune {
	r := []rune(s)
	if len(r) > width {
		return r[:width]
	}
	return r
}

// Center pads text on both sides to width, extra space going right.
func Center(text string, width int) string {
	r := clip(text, width)
	gap := width - len(r)
	left := gap / 2
	return strings.Repeat(" ", left) + string(r) + strings.Repeat(" ", gap-left)
}

// Left pads text on the right to width.
func Left(text string, width int) string {
	r := clip(text, width)
	return string(r) + strings.Repeat(" ", width-len(r))
}

// Right pads text on the left to width.
func Right(text string, width int) string {
	r := clip(text, width)
	return strings.Repeat(" ", width-len(r)) + string(r)
}

// Separator repeats ch across width. An empty ch means "-".
func Separator(ch string, width int) string {
	if ch == "" {
		ch = "-"
	}
	return string(clip(strings.Repeat(ch, width), width))
}

// TwoColumns puts left and right at the edges of one line, truncating left
// so at least one space separates them.
func TwoColumns(left, right string, width int) string {
	rr := []rune(right)
	maxLeft := width - len(rr) - 1
	if maxLeft < 0 {
		maxLeft = 0
	}
	lr := clip(left, maxLeft)
	pad := width - len(lr) - len(rr)
	if pad < 1 {
		pad = 1
	}
	return string(lr) + strings.Repeat(" ", pad) + string(rr)
}

// Wrap breaks text on spaces into lines no wider than width. A single word
// longer than width gets a line of its own.
func Wrap(text string, width int) []string {
	if len([]rune(text)) <= width {
		return []string{text}
	}
	var (
		lines []string
		cur   []rune
	)
	for _, word := range strings.Split(text, " ") {
		w := []rune(word)
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// TableRow lays columns out at fixed widths separated by one space and
// clipped to LineWidth.
func TableRow(columns []string, widths []int) (string, error) {
	if len(columns) != len(widths) {
		return "", fmt.Errorf("table row has %d columns but %d widths", len(columns), len(widths))
	}
	var b strings.Builder
	for i, col := range columns {
		b.WriteString(Left(col, widths[i]))
		if i < len(columns)-1 {
			b.WriteByte(' ')
		}
	}
	return string(clip(b.String(), LineWidth)), nil
}
