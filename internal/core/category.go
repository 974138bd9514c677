package core

import (
	"encoding/json"
	"fmt"
)

// Category is one node of the per-user taxonomy. Transactions reference a
// (category, subcategory) id pair; subcategories may nest further for
// display, but validation only looks two levels deep.
type Category struct {
	ID            int           `json:"category_id"`
	Name          string        `json:"category_name"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// Subcategory is a nested taxonomy node. Ids are unique within the parent
// category only.
type Subcategory struct {
	ID            int           `json:"subcategory_id"`
	Name          string        `json:"subcategory_name"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// Taxonomy holds one category forest per flow direction.
type Taxonomy map[Flow][]Category

// ParseTaxonomy decodes a taxonomy document ({"in": [...], "out": [...]}).
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var t Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: taxonomy document: %v", ErrInvalidInput, err)
	}
	return t, nil
}

// HasCategory reports whether a top-level category with the given id exists.
func HasCategory(cats []Category, categoryID int) bool {
	for _, c := range cats {
		if c.ID == categoryID {
			return true
		}
	}
	return false
}

// HasSubcategory reports whether the given subcategory exists directly under
// the given category. Deeper nesting is a display concern and does not make a
// (category, subcategory) pair valid for a transaction.
func HasSubcategory(cats []Category, categoryID, subcategoryID int) bool {
	for _, c := range cats {
		if c.ID != categoryID {
			continue
		}
		for _, s := range c.Subcategories {
			if s.ID == subcategoryID {
				return true
			}
		}
	}
	return false
}

// CategoryName resolves a top-level category id to its display name, falling
// back to the numeric id when absent.
func CategoryName(cats []Category, categoryID int) string {
	for _, c := range cats {
		if c.ID == categoryID {
			return c.Name
		}
	}
	return fmt.Sprintf("%d", categoryID)
}

// SubcategoryName resolves a (category, subcategory) id pair to the
// subcategory display name, falling back to the numeric id when absent.
func SubcategoryName(cats []Category, categoryID, subcategoryID int) string {
	for _, c := range cats {
		if c.ID != categoryID {
			continue
		}
		for _, s := range c.Subcategories {
			if s.ID == subcategoryID {
				return s.Name
			}
		}
	}
	return fmt.Sprintf("%d", subcategoryID)
}

// FlatCategory is one row of a flattened taxonomy: the subcategory id plus
// its full display path ("Home - Utilities - Electricity").
type FlatCategory struct {
	ID   int
	Path string
}

// Flatten walks the category forest to arbitrary depth and returns every
// subcategory with its ancestor names joined by " - ".
func Flatten(cats []Category) []FlatCategory {
	var out []FlatCategory
	for _, c := range cats {
		out = append(out, flattenSubs(c.Subcategories, c.Name)...)
	}
	return out
}

func flattenSubs(subs []Subcategory, parentPath string) []FlatCategory {
	var out []FlatCategory
	for _, s := range subs {
		path := parentPath + " - " + s.Name
		out = append(out, FlatCategory{ID: s.ID, Path: path})
		if len(s.Subcategories) > 0 {
			out = append(out, flattenSubs(s.Subcategories, path)...)
		}
	}
	return out
}
