package planstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no plan matches (query, category) exactly.
var ErrNotFound = errors.New("planstore: plan not found")

// ErrInvalidCategory is returned on writes with a category outside the
// configured whitelist.
var ErrInvalidCategory = errors.New("planstore: invalid category")

// ErrEmptyKey is returned on writes with an empty query, category or plan.
var ErrEmptyKey = errors.New("planstore: empty query, category or plan")

// Store is the exact-match plan persistence interface.
type Store interface {
	// GetPlan returns the plan stored for the trimmed query and category.
	// ErrNotFound when absent or the category is not whitelisted.
	GetPlan(ctx context.Context, query, category string) (string, error)

	// PutPlan inserts or overwrites the plan for (query, category).
	// ErrInvalidCategory when the category is not whitelisted.
	PutPlan(ctx context.Context, query, plan, category string) error
}

// normalizeKey validates inputs shared by every implementation. An empty
// whitelist allows all categories.
func normalizeKey(query, category string, allowed map[string]struct{}) (string, string, error) {
	query = strings.TrimSpace(query)
	category = strings.TrimSpace(category)
	if query == "" || category == "" {
		return "", "", ErrEmptyKey
	}
	if len(allowed) > 0 {
		if _, ok := allowed[category]; !ok {
			return "", "", ErrInvalidCategory
		}
	}
	return query, category, nil
}

func whitelistSet(categories []string) map[string]struct{} {
	if len(categories) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}
