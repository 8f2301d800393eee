package relation

import "strings"

// Inflector converts kind names between singular and plural form.
// Pluralization is a host concern; the engine only needs a consistent
// mapping, so consumers with irregular kind names supply their own.
type Inflector interface {
	Singular(name string) string
	Plural(name string) string
}

// DefaultInflector handles regular English nouns: trailing "ies"/"y" and a
// plain "s" suffix. Good enough for conventional kind names like "users",
// "teams", "categories".
type DefaultInflector struct{}

func (DefaultInflector) Singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ses"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return strings.TrimSuffix(name, "s")
	default:
		return name
	}
}

func (DefaultInflector) Plural(name string) string {
	switch {
	case strings.HasSuffix(name, "y"):
		return strings.TrimSuffix(name, "y") + "ies"
	case strings.HasSuffix(name, "s"):
		return name + "es"
	default:
		return name + "s"
	}
}
