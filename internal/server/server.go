// Package server exposes the engine over MCP: tools to parse, reparse and
// query the declaration model, and resources for the outline and the model
// itself.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/cxxmodel/internal/config"
	"github.com/dejo1307/cxxmodel/internal/engine"
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/scheduler"
)

var logger = log.WithPrefix("server")

// Server wraps the MCP server and connects it to the engine.
type Server struct {
	mcp *mcp.Server
	eng *engine.Engine
}

// New creates a new MCP server wired to the given engine.
func New(eng *engine.Engine, version string) (*Server, error) {
	s := &Server{eng: eng}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "cxxmodel",
		Version: version,
	}, nil)
	s.registerResources()
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	logger.Info("starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// registerResources adds MCP resources for the model.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         "model://outline",
		Name:        "Declaration Outline",
		Description: "Compact markdown outline of projects, namespaces, classes, templates and include cycles",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return textResource(req.Params.URI, "text/markdown", s.eng.Outline()), nil
	})

	s.mcp.AddResource(&mcp.Resource{
		URI:         "model://declarations",
		Name:        "Declarations",
		Description: "Every declaration and include of the model in JSONL format",
		MIMEType:    "application/jsonl",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		var buf bytes.Buffer
		if err := s.eng.Store().WriteJSONL(&buf); err != nil {
			return nil, fmt.Errorf("encoding model: %w", err)
		}
		return textResource(req.Params.URI, "application/jsonl", buf.Bytes()), nil
	})

	s.mcp.AddResource(&mcp.Resource{
		URI:         "model://meta",
		Name:        "Model Metadata",
		Description: "Session id, counts and per-file hashes of the current model",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := json.MarshalIndent(s.eng.Meta(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding meta: %w", err)
		}
		return textResource(req.Params.URI, "application/json", data), nil
	})
}

func textResource(uri, mime string, data []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, Text: string(data), MIMEType: mime},
		},
	}
}

// parseProjectArgs are the arguments for the parse_project tool.
type parseProjectArgs struct {
	Project string `json:"project,omitempty" jsonschema:"Name of a configured project. Empty parses every configured project."`
	Wait    bool   `json:"wait,omitempty" jsonschema:"Block until the queued files have been parsed"`
}

// reparseFileArgs are the arguments for the reparse_file tool.
type reparseFileArgs struct {
	Project  string `json:"project,omitempty" jsonschema:"Project name; may be omitted when only one project is loaded"`
	Path     string `json:"path" jsonschema:"File path relative to the project root, or absolute"`
	Position string `json:"position,omitempty" jsonschema:"Queue position: immediate, head (default) or tail"`
	Force    bool   `json:"force,omitempty" jsonschema:"Reparse even when content and conditional state are unchanged"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"Block until the project is idle"`
}

// queryDeclarationsArgs are the arguments for the query_declarations tool.
type queryDeclarationsArgs struct {
	Kind      string `json:"kind,omitempty" jsonschema:"Filter by kind: namespace, class, struct, union, enum, enumerator, function, variable, field, typedef, type_alias, using_directive, using_declaration, namespace_alias"`
	Project   string `json:"project,omitempty" jsonschema:"Filter by project"`
	File      string `json:"file,omitempty" jsonschema:"Filter by exact file path"`
	Prefix    string `json:"file_prefix,omitempty" jsonschema:"Filter by file path prefix (directory)"`
	Name      string `json:"name,omitempty" jsonschema:"Filter by qualified name using substring match"`
	Scope     string `json:"scope,omitempty" jsonschema:"Filter by exact enclosing namespace or class"`
	Flavor    string `json:"flavor,omitempty" jsonschema:"Filter by flavor: declaration, definition, forward, specialization, instantiation"`
	Prop      string `json:"prop,omitempty" jsonschema:"Filter by property name (e.g. virtual, static, template, fake)"`
	PropValue string `json:"prop_value,omitempty" jsonschema:"Filter by property value (requires prop to be set)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"Number of results to skip"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 100, max 500)"`
}

// fileArgs are the arguments for the dead_blocks tool.
type fileArgs struct {
	Project string `json:"project,omitempty" jsonschema:"Project name; may be omitted when only one project is loaded"`
	Path    string `json:"path" jsonschema:"File path relative to the project root, or absolute"`
}

// includeCyclesArgs are the arguments for the include_cycles tool.
type includeCyclesArgs struct {
	Project string `json:"project,omitempty" jsonschema:"Only report cycles of this project"`
}

// showDeclarationArgs are the arguments for the show_declaration tool.
type showDeclarationArgs struct {
	Name         string `json:"name" jsonschema:"required,Qualified or short name of the declaration"`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"Number of source lines to show around the declaration (default 20)"`
}

type noArgs struct{}

// registerTools adds the MCP tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_project",
		Description: "Walk a configured project and queue every C/C++ source file for parsing under all of its preprocessor contexts.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args parseProjectArgs) (*mcp.CallToolResult, any, error) {
		return s.parseProject(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reparse_file",
		Description: "Queue one file for reparsing. Unchanged files are skipped unless force is set.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reparseFileArgs) (*mcp.CallToolResult, any, error) {
		return s.reparseFile(ctx, args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_declarations",
		Description: "Query the declaration model by kind, file, name, scope, flavor or property. Returns matching declarations as JSON.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args queryDeclarationsArgs) (*mcp.CallToolResult, any, error) {
		return s.queryDeclarations(args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "show_declaration",
		Description: "Show the source of a declaration with surrounding context lines.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args showDeclarationArgs) (*mcp.CallToolResult, any, error) {
		return s.showDeclaration(args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "dead_blocks",
		Description: "Report the source ranges of a file excluded by preprocessor conditionals in its representative context, plus render diagnostics.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArgs) (*mcp.CallToolResult, any, error) {
		return s.deadBlocks(args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scheduler_status",
		Description: "Report parse queue length, files in flight, per-project activity and engine counters.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args noArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.eng.Stats()), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "include_cycles",
		Description: "Find cycles in the include graph of the parsed files.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args includeCyclesArgs) (*mcp.CallToolResult, any, error) {
		return s.includeCycles(args), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "save_model",
		Description: "Write the model, its metadata and the outline to the output directory.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args noArgs) (*mcp.CallToolResult, any, error) {
		if err := s.eng.Save(); err != nil {
			return errorResult(fmt.Sprintf("save failed: %v", err)), nil, nil
		}
		return textResult(fmt.Sprintf("Model saved to %s (%d declarations).", s.eng.OutputDir(), s.eng.Store().Count())), nil, nil
	})
}

func (s *Server) parseProject(ctx context.Context, args parseProjectArgs) *mcp.CallToolResult {
	var projects []config.ProjectConfig
	for _, pc := range s.eng.Config().EffectiveProjects() {
		if args.Project == "" || pc.Name == args.Project {
			projects = append(projects, pc)
		}
	}
	if len(projects) == 0 {
		return errorResult(fmt.Sprintf("No configured project named %q.", args.Project))
	}

	var sb strings.Builder
	sb.WriteString("Parse queued.\n\n")
	for _, pc := range projects {
		p, n, err := s.eng.LoadProject(ctx, pc)
		if err != nil {
			return errorResult(fmt.Sprintf("loading %s failed: %v", pc.Name, err))
		}
		fmt.Fprintf(&sb, "- %s: %d files under %d contexts\n", p.Name, n, len(p.Contexts))
	}

	if args.Wait {
		if err := s.eng.AwaitIdle(ctx); err != nil {
			return errorResult(fmt.Sprintf("waiting for parse: %v", err))
		}
		st := s.eng.Stats()
		fmt.Fprintf(&sb, "\nDone: %d declarations, %d files parsed, %d skipped, %d failed.\n",
			st.Declarations, st.Parsed, st.Skipped, st.Failed)
	}
	sb.WriteString("\nUse the model://outline resource for an overview.")
	return textResult(sb.String())
}

func (s *Server) reparseFile(ctx context.Context, args reparseFileArgs) *mcp.CallToolResult {
	if args.Path == "" {
		return errorResult("path is required")
	}
	pos, err := scheduler.ParsePosition(args.Position)
	if err != nil {
		return errorResult(err.Error())
	}
	path, err := s.normalizeToRelative(args.Project, args.Path)
	if err != nil {
		return errorResult(err.Error())
	}
	created, err := s.eng.ReparseFile(args.Project, path, pos, args.Force)
	if err != nil {
		if isUnknownProject(err) {
			return errorResult(fmt.Sprintf("%v. Run parse_project first.", err))
		}
		return errorResult(err.Error())
	}

	msg := fmt.Sprintf("%s queued at %s.", path, pos)
	if !created {
		msg = fmt.Sprintf("%s was already queued; request merged.", path)
	}
	if args.Wait {
		if err := s.eng.AwaitIdle(ctx); err != nil {
			return errorResult(fmt.Sprintf("waiting for parse: %v", err))
		}
		if p, err := s.eng.Project(args.Project); err == nil {
			msg += fmt.Sprintf(" Parsed: %d declarations.", len(s.eng.Store().ByFile(p.Name, path)))
		}
	}
	return textResult(msg)
}

func (s *Server) queryDeclarations(args queryDeclarationsArgs) *mcp.CallToolResult {
	store := s.eng.Store()
	if store.Count() == 0 {
		return errorResult("No declarations available. Run parse_project first.")
	}

	results, total := store.Query(model.QueryOpts{
		Kind:       model.Kind(args.Kind),
		Project:    args.Project,
		File:       args.File,
		FilePrefix: args.Prefix,
		Name:       args.Name,
		Namespace:  args.Scope,
		Flavor:     model.Flavor(args.Flavor),
		Prop:       args.Prop,
		PropValue:  args.PropValue,
		Offset:     args.Offset,
		Limit:      args.Limit,
	})
	if total == 0 {
		msg := "No declarations match the query."
		if suggestions := store.Suggest(args.Name, 5); len(suggestions) > 0 {
			msg += " Did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
		return textResult(msg)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal results: %v", err))
	}
	text := string(data)
	if shown := args.Offset + len(results); shown < total {
		text += fmt.Sprintf("\n\n... (showing %d-%d of %d results, use offset to page)", args.Offset+1, shown, total)
	}
	return textResult(text)
}

func (s *Server) deadBlocks(args fileArgs) *mcp.CallToolResult {
	path, err := s.normalizeToRelative(args.Project, args.Path)
	if err != nil {
		return errorResult(err.Error())
	}
	st, err := s.eng.FileStatus(args.Project, path)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(st)
}

func (s *Server) includeCycles(args includeCyclesArgs) *mcp.CallToolResult {
	var cycles []model.IncludeCycle
	for _, c := range s.eng.Store().IncludeCycles() {
		if args.Project == "" || c.Project == args.Project {
			cycles = append(cycles, c)
		}
	}
	if len(cycles) == 0 {
		return textResult("No include cycles found.")
	}
	return jsonResult(cycles)
}

// normalizeToRelative turns an absolute path into one relative to the root
// of the named project.
func (s *Server) normalizeToRelative(projectName, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	p, err := s.eng.Project(projectName)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(p.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside project %s", path, p.Name)
	}
	return filepath.ToSlash(rel), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return textResult(string(data))
}

func textResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// isUnknownProject reports whether err names a project that is not loaded.
func isUnknownProject(err error) bool {
	return errors.Is(err, engine.ErrUnknownProject)
}
