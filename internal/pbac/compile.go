package pbac

import "regexp"

var placeholderPattern = regexp.MustCompile(`\$\{(.+?)\}`)

// CompileStatement substitutes ${name} placeholders in the statement's
// resource patterns from the attachment's variable map. A placeholder
// whose name is absent from the map is left untouched, so it can never
// match a concrete value in that position. Action patterns are never
// substituted.
func CompileStatement(st Statement, variables map[string]string) Statement {
	out := st
	out.Resources = make([]string, len(st.Resources))
	for i, r := range st.Resources {
		out.Resources[i] = placeholderPattern.ReplaceAllStringFunc(r, func(m string) string {
			name := m[2 : len(m)-1]
			if v, ok := variables[name]; ok {
				return v
			}
			return m
		})
	}
	return out
}

// CompileStatements applies CompileStatement to every statement.
func CompileStatements(sts []Statement, variables map[string]string) []Statement {
	out := make([]Statement, len(sts))
	for i, st := range sts {
		out[i] = CompileStatement(st, variables)
	}
	return out
}
