package feishu

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// cardElement is one element of an interactive card.
type cardElement = map[string]interface{}

// tableSeparator matches the header-separator row of a markdown table
// (dashes and optional alignment colons between pipes).
var tableSeparator = regexp.MustCompile(`^\|?[\s\-:|]+\|?$`)

// buildCard renders outbound content as an interactive card. Markdown
// tables become tabular card elements; surrounding prose becomes markdown
// elements. Segment order is preserved.
func buildCard(content string) (string, error) {
	var elements []cardElement

	for _, seg := range splitSegments(content) {
		if seg.table {
			if el := renderTable(seg.text); el != nil {
				elements = append(elements, el)
				continue
			}
			// Not parseable as a table after all; fall through to markdown.
		}
		text := strings.TrimSpace(seg.text)
		if text == "" {
			continue
		}
		elements = append(elements, cardElement{
			"tag":     "markdown",
			"content": text,
		})
	}

	card := map[string]interface{}{
		"config":   map[string]interface{}{"wide_screen_mode": true},
		"elements": elements,
	}
	data, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}
	return string(data), nil
}

// segment is a run of prose or one table block.
type segment struct {
	text  string
	table bool
}

// splitSegments separates markdown tables (pipe rows with a dash/colon
// separator as the second line) from surrounding prose.
func splitSegments(content string) []segment {
	lines := strings.Split(content, "\n")
	var segs []segment
	var buf []string

	flush := func(isTable bool) {
		if len(buf) == 0 {
			return
		}
		segs = append(segs, segment{text: strings.Join(buf, "\n"), table: isTable})
		buf = nil
	}

	i := 0
	for i < len(lines) {
		if isTableStart(lines, i) {
			flush(false)
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
				buf = append(buf, lines[i])
				i++
			}
			flush(true)
			continue
		}
		buf = append(buf, lines[i])
		i++
	}
	flush(false)
	return segs
}

// isTableStart checks for a pipe header row followed by a separator row.
func isTableStart(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	head := strings.TrimSpace(lines[i])
	sep := strings.TrimSpace(lines[i+1])
	return strings.HasPrefix(head, "|") &&
		strings.HasPrefix(sep, "|") &&
		strings.Contains(sep, "-") &&
		tableSeparator.MatchString(sep)
}

// renderTable parses one table block and converts it to a card table
// element. Returns nil when the block does not parse as a table.
func renderTable(block string) cardElement {
	p := parser.NewWithExtensions(parser.Tables)
	doc := p.Parse([]byte(block))

	var header []string
	var rows [][]string

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.TableHeader:
			for _, row := range n.GetChildren() {
				header = collectCells(row)
			}
			return ast.SkipChildren
		case *ast.TableBody:
			for _, row := range n.GetChildren() {
				rows = append(rows, collectCells(row))
			}
			return ast.SkipChildren
		}
		return ast.GoToNext
	})

	if len(header) == 0 {
		return nil
	}

	columns := make([]cardElement, len(header))
	for i, name := range header {
		columns[i] = cardElement{
			"name":         fmt.Sprintf("col_%d", i),
			"display_name": name,
			"width":        "auto",
		}
	}

	tableRows := make([]map[string]string, 0, len(rows))
	for _, cells := range rows {
		row := make(map[string]string, len(header))
		for i := range header {
			if i < len(cells) {
				row[fmt.Sprintf("col_%d", i)] = cells[i]
			} else {
				row[fmt.Sprintf("col_%d", i)] = ""
			}
		}
		tableRows = append(tableRows, row)
	}

	return cardElement{
		"tag":       "table",
		"page_size": len(tableRows),
		"columns":   columns,
		"rows":      tableRows,
	}
}

// collectCells extracts the plain text of each cell in a table row.
func collectCells(row ast.Node) []string {
	var cells []string
	for _, cell := range row.GetChildren() {
		var sb strings.Builder
		ast.WalkFunc(cell, func(node ast.Node, entering bool) ast.WalkStatus {
			if entering {
				if leaf := node.AsLeaf(); leaf != nil {
					sb.Write(leaf.Literal)
				}
			}
			return ast.GoToNext
		})
		cells = append(cells, strings.TrimSpace(sb.String()))
	}
	return cells
}
