// Package inflect provides the naming conventions used by the mapping
// engine: snake_case conversion, table-name derivation, and joining-table
// names for pivot-backed relationships.
package inflect

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ToSnakeCase converts CamelCase to snake_case.
// Handles acronyms properly (HTTPRequest -> http_request)
func ToSnakeCase(s string) string {
	var result strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				// Add underscore before uppercase letter if:
				// 1. Previous char is lowercase
				// 2. Next char is lowercase (for acronyms like HTTPRequest -> http_request)
				if unicode.IsLower(prev) {
					result.WriteRune('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					result.WriteRune('_')
				}
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Pluralize returns the plural form of a word.
func Pluralize(s string) string {
	return inflection.Plural(s)
}

// TableName derives the conventional table name for an entity class name:
// the pluralized snake_case form (BlogPost -> blog_posts).
func TableName(class string) string {
	return Pluralize(ToSnakeCase(class))
}

// ForeignKey derives the conventional foreign key column for a class or
// relation name (Order -> order_id, customer -> customer_id).
func ForeignKey(name string) string {
	return ToSnakeCase(name) + "_id"
}

// JoiningTable derives the name of the pivot table linking two tables.
// The two names are sorted lexicographically and joined with an underscore,
// so the result is the same regardless of which side asks.
func JoiningTable(a, b string) string {
	tables := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(tables)
	return strings.Join(tables, "_")
}
