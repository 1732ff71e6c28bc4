package htmldoc

import "strings"

// styleProperty returns the value of one declaration of an inline style
// attribute.
func styleProperty(style, prop string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && normalise(k) == prop {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// setStyleProperty rewrites one declaration, appending it when absent. An
// empty value removes the declaration.
func setStyleProperty(style, prop, value string) string {
	var out []string
	replaced := false
	for _, decl := range strings.Split(style, ";") {
		if strings.TrimSpace(decl) == "" {
			continue
		}
		k, _, ok := strings.Cut(decl, ":")
		if ok && normalise(k) == prop {
			if value != "" && !replaced {
				out = append(out, prop+": "+value)
			}
			replaced = true
			continue
		}
		out = append(out, strings.TrimSpace(decl))
	}
	if !replaced && value != "" {
		out = append(out, prop+": "+value)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "; ") + ";"
}
