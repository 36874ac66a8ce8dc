package domain

import (
	"fmt"
	"slices"
	"strings"
)

// TodoList is one user's ordered list of pending items.
type TodoList struct {
	UserID int64
	Items  []string
}

// Add appends text and returns the new list.
func (l TodoList) Add(text string) (TodoList, error) {
	if strings.TrimSpace(text) == "" {
		return l, ErrEmptyItem
	}
	items := append(slices.Clone(l.Items), text)
	return TodoList{UserID: l.UserID, Items: items}, nil
}

// Remove deletes the item at the 1-based position given as text.
// l is left untouched on error.
func (l TodoList) Remove(indexArg string) (TodoList, string, error) {
	i, err := ParseIndex(indexArg, len(l.Items))
	if err != nil {
		return l, "", err
	}
	removed := l.Items[i]
	items := slices.Delete(slices.Clone(l.Items), i, i+1)
	return TodoList{UserID: l.UserID, Items: items}, removed, nil
}

// Lines renders items with 1-based display indices.
func (l TodoList) Lines() []string {
	out := make([]string, len(l.Items))
	for i, item := range l.Items {
		out[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return out
}
