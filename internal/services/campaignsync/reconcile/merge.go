// Package reconcile merges pushed events and mutation results into a
// campaign view's collections.
//
// Every rule reduces to three generic helpers keyed by entity id, so REST
// snapshots, realtime events, and optimistic mutation results share one
// de-duplication path. Helpers never modify their input slices.
package reconcile

import "github.com/kindfund/campaignsync/internal/services/campaignsync/domain"

// Outcome describes what a merge did to a collection.
type Outcome string

const (
	Ignored  Outcome = "ignored"
	Inserted Outcome = "inserted"
	Replaced Outcome = "replaced"
	Removed  Outcome = "removed"
)

// Changed reports whether the collection differs after the merge.
func (o Outcome) Changed() bool {
	return o != Ignored
}

// Upsert replaces the entry sharing item's id in place, or prepends item
// when no entry matches.
func Upsert[T any](items []T, item T, id func(T) domain.ID) ([]T, Outcome) {
	key := id(item)
	for i := range items {
		if domain.SameID(id(items[i]), key) {
			next := make([]T, len(items))
			copy(next, items)
			next[i] = item
			return next, Replaced
		}
	}
	next := make([]T, 0, len(items)+1)
	next = append(next, item)
	next = append(next, items...)
	return next, Inserted
}

// Remove drops every entry with the given id. A missing id is a no-op.
func Remove[T any](items []T, target domain.ID, id func(T) domain.ID) ([]T, Outcome) {
	next := make([]T, 0, len(items))
	for _, item := range items {
		if domain.SameID(id(item), target) {
			continue
		}
		next = append(next, item)
	}
	if len(next) == len(items) {
		return items, Ignored
	}
	return next, Removed
}

// MergeVisible upserts item when visible reports true and removes any entry
// with its id otherwise. Invisible items are never added.
func MergeVisible[T any](items []T, item T, id func(T) domain.ID, visible func(T) bool) ([]T, Outcome) {
	if !visible(item) {
		return Remove(items, id(item), id)
	}
	return Upsert(items, item, id)
}

// Contains reports whether an entry with the given id is present.
func Contains[T any](items []T, target domain.ID, id func(T) domain.ID) bool {
	for _, item := range items {
		if domain.SameID(id(item), target) {
			return true
		}
	}
	return false
}
