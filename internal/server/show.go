package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/cxxmodel/internal/model"
)

func (s *Server) showDeclaration(args showDeclarationArgs) *mcp.CallToolResult {
	if args.Name == "" {
		return errorResult("name is required")
	}
	store := s.eng.Store()
	results := store.ByName(args.Name)
	if len(results) == 0 {
		results = store.ByShortName(args.Name)
	}
	if len(results) == 0 {
		msg := fmt.Sprintf("No declaration named %q.", args.Name)
		if suggestions := store.Suggest(args.Name, 5); len(suggestions) > 0 {
			msg += " Did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
		return errorResult(msg)
	}

	contextLines := args.ContextLines
	if contextLines <= 0 {
		contextLines = 20
	}

	// Limit to 5 results
	if len(results) > 5 {
		results = results[:5]
	}

	var sb strings.Builder
	for i, d := range results {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		writeDeclarationHeader(&sb, d)

		p, err := s.eng.Project(d.Project)
		if err != nil {
			fmt.Fprintf(&sb, "_Could not locate project: %v_\n", err)
			continue
		}
		source, err := readSourceWindow(filepath.Join(p.Root, filepath.FromSlash(d.File)), d.Line, contextLines)
		if err != nil {
			fmt.Fprintf(&sb, "_Could not read source: %v_\n", err)
			continue
		}
		fmt.Fprintf(&sb, "```cpp\n%s```\n", source)
	}
	return textResult(sb.String())
}

func writeDeclarationHeader(sb *strings.Builder, d model.Declaration) {
	fmt.Fprintf(sb, "### %s\n", d.QualifiedName)
	what := string(d.Kind)
	if d.Flavor != "" {
		what += " " + string(d.Flavor)
	}
	fmt.Fprintf(sb, "%s in %s:%d\n", what, d.File, d.Line)
	if d.Type != "" {
		fmt.Fprintf(sb, "Type: `%s`\n", d.Type)
	}
	if len(d.Params) > 0 {
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			params = append(params, strings.TrimSpace(p.Type+" "+p.Name))
		}
		fmt.Fprintf(sb, "Params: `(%s)`\n", strings.Join(params, ", "))
	}
	sb.WriteString("\n")
}

// readSourceWindow reads lines from a file centered around the given line number.
func readSourceWindow(absFile string, centerLine, contextLines int) (string, error) {
	data, err := os.ReadFile(absFile)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(data), "\n")
	startLine := max(centerLine-contextLines/2, 1)
	endLine := min(centerLine+contextLines/2, len(lines))

	var sb strings.Builder
	for i := startLine; i <= endLine; i++ {
		fmt.Fprintf(&sb, "%4d│ %s\n", i, lines[i-1])
	}
	return sb.String(), nil
}
