package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var ErrInvalidProductID = errors.New("wishlist: product id is empty")

// Wishlist is a per-user set of product ids.
type Wishlist struct {
	UserID     string
	ProductIDs []string
	UpdatedAt  time.Time
}

func New(userID string) *Wishlist {
	return &Wishlist{UserID: strings.TrimSpace(userID), ProductIDs: []string{}}
}

func (w *Wishlist) Contains(productID string) bool {
	for _, id := range w.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Add reports whether productID was not already present.
func (w *Wishlist) Add(productID string, now time.Time) (bool, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return false, ErrInvalidProductID
	}
	if w.Contains(pid) {
		return false, nil
	}
	w.ProductIDs = append(w.ProductIDs, pid)
	w.UpdatedAt = now
	return true, nil
}

// Remove reports whether productID was present.
func (w *Wishlist) Remove(productID string, now time.Time) bool {
	pid := strings.TrimSpace(productID)
	for i, id := range w.ProductIDs {
		if id == pid {
			w.ProductIDs = append(w.ProductIDs[:i], w.ProductIDs[i+1:]...)
			w.UpdatedAt = now
			return true
		}
	}
	return false
}

// Normalize drops blanks and duplicates from stored data.
func (w *Wishlist) Normalize() {
	seen := make(map[string]struct{}, len(w.ProductIDs))
	out := w.ProductIDs[:0]
	for _, id := range w.ProductIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	w.ProductIDs = out
}

// Sorted returns a sorted copy of the set.
func (w *Wishlist) Sorted() []string {
	out := append([]string(nil), w.ProductIDs...)
	sort.Strings(out)
	return out
}
