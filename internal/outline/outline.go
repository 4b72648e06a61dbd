// Package outline renders a compact markdown overview of the declaration
// model, sized to a token budget.
package outline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dejo1307/cxxmodel/internal/model"
)

// FileName is the name of the outline artifact in the output directory.
const FileName = "outline.md"

// Renderer produces the outline.
type Renderer struct {
	maxTokens int
}

// New creates a Renderer with the given token budget.
func New(maxTokens int) *Renderer {
	if maxTokens <= 0 {
		maxTokens = 16000
	}
	return &Renderer{maxTokens: maxTokens}
}

// section holds a rendered section with its display name.
type section struct {
	name    string
	content string
}

// Render produces the outline using progressive summarization. Sections are
// ordered by priority; lower-priority sections are omitted first when the
// token budget is tight.
func (r *Renderer) Render(s *model.Store, meta model.Meta) []byte {
	decls := s.All()
	sections := []section{
		{"Projects", r.renderProjects(decls)},
		{"Namespaces", r.renderNamespaces(s)},
		{"Classes", r.renderClasses(decls)},
		{"Templates", r.renderTemplates(decls)},
		{"Include Cycles", r.renderCycles(s.IncludeCycles())},
		{"Fake Includes", r.renderFakeIncludes(s.Includes())},
		{"Meta", r.renderMeta(meta)},
	}

	header := "# Declaration Model\n\n"
	maxChars := r.maxTokens * 4 // rough estimate: 1 token ~= 4 chars
	remaining := maxChars - len(header)

	var sb strings.Builder
	sb.WriteString(header)

	for i, sec := range sections {
		if sec.content == "" {
			continue
		}
		if len(sec.content) <= remaining {
			sb.WriteString(sec.content)
			remaining -= len(sec.content)
			continue
		}
		if remaining > 200 {
			sb.WriteString(cutAtLine(sec.content, remaining-100))
			fmt.Fprintf(&sb, "\n\n---\n*[Truncated in: %s]*\n", sec.name)
			break
		}
		var omitted []string
		for _, s := range sections[i:] {
			if s.content != "" {
				omitted = append(omitted, s.name)
			}
		}
		fmt.Fprintf(&sb, "\n\n---\n*[Omitted: %s]*\n", strings.Join(omitted, ", "))
		break
	}
	return []byte(sb.String())
}

// cutAtLine truncates s to at most n bytes, backing up to a line break when
// there is one.
func cutAtLine(s string, n int) string {
	if n >= len(s) {
		return s
	}
	n = max(n, 0)
	if i := strings.LastIndexByte(s[:n], '\n'); i > 0 {
		return s[:i+1]
	}
	return s[:n]
}

func (r *Renderer) renderProjects(decls []model.Declaration) string {
	var sb strings.Builder
	sb.WriteString("## Projects\n\n")
	if len(decls) == 0 {
		sb.WriteString("_No declarations._\n\n")
		return sb.String()
	}

	type stats struct {
		files map[string]bool
		decls int
	}
	byProject := make(map[string]*stats)
	for _, d := range decls {
		st, ok := byProject[d.Project]
		if !ok {
			st = &stats{files: make(map[string]bool)}
			byProject[d.Project] = st
		}
		st.files[d.File] = true
		st.decls++
	}
	names := make([]string, 0, len(byProject))
	for name := range byProject {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Project | Files | Declarations |\n")
	sb.WriteString("|---------|-------|--------------|\n")
	for _, name := range names {
		st := byProject[name]
		fmt.Fprintf(&sb, "| `%s` | %d | %d |\n", name, len(st.files), st.decls)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderNamespaces(s *model.Store) string {
	namespaces := s.Namespaces()
	if len(namespaces) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Namespaces\n\n")
	sb.WriteString("| Namespace | Types | Functions | Variables | Other |\n")
	sb.WriteString("|-----------|-------|-----------|-----------|-------|\n")
	for _, ns := range namespaces {
		var types, funcs, vars, other int
		for _, d := range s.Namespace(ns) {
			switch {
			case d.Kind.IsClassifier(), d.Kind == model.KindTypedef, d.Kind == model.KindTypeAlias:
				types++
			case d.Kind == model.KindFunction:
				funcs++
			case d.Kind == model.KindVariable:
				vars++
			default:
				other++
			}
		}
		name := ns
		if name == "" {
			name = "(global)"
		}
		fmt.Fprintf(&sb, "| `%s` | %d | %d | %d | %d |\n", name, types, funcs, vars, other)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderClasses(decls []model.Declaration) string {
	members := make(map[string]int)
	for _, d := range decls {
		if d.ScopeKind == model.ScopeClass {
			members[d.Scope]++
		}
	}

	type classInfo struct {
		decl    model.Declaration
		members int
	}
	var classes []classInfo
	seen := make(map[string]bool)
	for _, d := range decls {
		if !d.Kind.IsClassifier() || d.Flavor == model.FlavorForward || seen[d.QualifiedName] {
			continue
		}
		seen[d.QualifiedName] = true
		classes = append(classes, classInfo{d, members[d.QualifiedName]})
	}
	if len(classes) == 0 {
		return ""
	}
	sort.SliceStable(classes, func(i, j int) bool {
		if classes[i].members != classes[j].members {
			return classes[i].members > classes[j].members
		}
		return classes[i].decl.QualifiedName < classes[j].decl.QualifiedName
	})

	// Show top 20
	limit := min(20, len(classes))

	var sb strings.Builder
	sb.WriteString("## Classes\n\n")
	sb.WriteString("| Class | Kind | Members | Bases | Location |\n")
	sb.WriteString("|-------|------|---------|-------|----------|\n")
	for _, c := range classes[:limit] {
		bases := ""
		if list, ok := c.decl.Props["bases"].([]string); ok {
			bases = strings.Join(list, ", ")
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %d | %s | `%s:%d` |\n",
			c.decl.QualifiedName, c.decl.Kind, c.members, bases, c.decl.File, c.decl.Line)
	}
	if len(classes) > limit {
		fmt.Fprintf(&sb, "\n_%d more not shown._\n", len(classes)-limit)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderTemplates(decls []model.Declaration) string {
	var lines []string
	for _, d := range decls {
		switch {
		case d.Flavor == model.FlavorSpecialization:
			what := "specialization"
			if partial, _ := d.Props["partial"].(bool); partial {
				what = "partial specialization"
			}
			lines = append(lines, fmt.Sprintf("- **%s** `%s` (%s:%d)", what, d.QualifiedName, d.File, d.Line))
		case d.Flavor == model.FlavorInstantiation:
			lines = append(lines, fmt.Sprintf("- **instantiation** `%s` (%s:%d)", d.QualifiedName, d.File, d.Line))
		case d.Props["template"] == true:
			lines = append(lines, fmt.Sprintf("- **template** `%s` %s (%s:%d)", d.QualifiedName, d.Props["template_params"], d.File, d.Line))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)

	var sb strings.Builder
	sb.WriteString("## Templates\n\n")
	for _, l := range lines {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderCycles(cycles []model.IncludeCycle) string {
	if len(cycles) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Include Cycles\n\n")
	for _, c := range cycles {
		fmt.Fprintf(&sb, "- `%s`: %s\n", c.Project, strings.Join(c.Files, " -> "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderFakeIncludes(incs []model.Include) string {
	var sb strings.Builder
	for _, inc := range incs {
		if !inc.Fake {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("## Fake Includes\n\n")
		}
		fmt.Fprintf(&sb, "- `%s:%d` includes `%s` inside `%s`\n", inc.File, inc.Line, inc.Path, inc.FakeOwner)
	}
	if sb.Len() == 0 {
		return ""
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) renderMeta(meta model.Meta) string {
	var sb strings.Builder
	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "*Generated at %s. %d declarations, %d includes. Session %s.*\n",
		meta.GeneratedAt, meta.DeclarationCount, meta.IncludeCount, meta.SessionID)
	return sb.String()
}
