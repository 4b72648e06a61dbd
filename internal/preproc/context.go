package preproc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Context is one assignment of macro state under which a file is parsed,
// e.g. the command-line defines of the translation unit including it.
// A Context is immutable once created.
type Context struct {
	name    string
	defines map[string]string
	key     string
}

// NewContext creates a context. defines maps macro names to replacement
// text; an empty value defines the macro as empty.
func NewContext(name string, defines map[string]string) *Context {
	cp := make(map[string]string, len(defines))
	names := make([]string, 0, len(defines))
	for k, v := range defines {
		cp[k] = v
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, k := range names {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(cp[k])
		sb.WriteByte('\n')
	}
	return &Context{
		name:    name,
		defines: cp,
		key:     fmt.Sprintf("%s#%016x", name, xxhash.Sum64String(sb.String())),
	}
}

// Name returns the context label.
func (c *Context) Name() string {
	return c.name
}

// Key identifies the context. Contexts with equal keys evaluate every
// conditional the same way.
func (c *Context) Key() string {
	return c.key
}

// Defines returns a copy of the predefined macros.
func (c *Context) Defines() map[string]string {
	cp := make(map[string]string, len(c.defines))
	for k, v := range c.defines {
		cp[k] = v
	}
	return cp
}

func (c *Context) String() string {
	return c.key
}
