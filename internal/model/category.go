// Package model defines the core data structures for the categorisation engine.
package model

import "time"

// Category is a spending or income category that transactions are filed under.
type Category struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GroupName string    `json:"group_name"`
	IsIncome  bool      `json:"is_income"`
}

// CategoryIndex is a lookup view over a category set.
type CategoryIndex struct {
	byID   map[string]Category
	byName map[string]Category
	all    []Category
}

// NewCategoryIndex builds an index over categories. Name lookups are case-insensitive.
func NewCategoryIndex(categories []Category) *CategoryIndex {
	idx := &CategoryIndex{
		byID:   make(map[string]Category, len(categories)),
		byName: make(map[string]Category, len(categories)),
		all:    categories,
	}
	for _, c := range categories {
		idx.byID[c.ID] = c
		idx.byName[NormalizeDescription(c.Name)] = c
	}
	return idx
}

// ByID returns the category with the given id.
func (idx *CategoryIndex) ByID(id string) (Category, bool) {
	c, ok := idx.byID[id]
	return c, ok
}

// ByName returns the category whose name matches case-insensitively.
func (idx *CategoryIndex) ByName(name string) (Category, bool) {
	c, ok := idx.byName[NormalizeDescription(name)]
	return c, ok
}

// All returns every indexed category in its original order.
func (idx *CategoryIndex) All() []Category {
	return idx.all
}

// Len returns the number of indexed categories.
func (idx *CategoryIndex) Len() int {
	return len(idx.all)
}
