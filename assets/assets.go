// Package assets embeds static data shipped with the binary.
package assets

import _ "embed"

// DefaultCategories is the taxonomy seeded into a fresh namespace, one
// category forest per flow direction ("in"/"out").
//
//go:embed default_categories.json
var DefaultCategories []byte
