package domain

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func item(id string, price int64, qty int) Item {
	return Item{ProductID: id, Name: "product " + id, Price: price, Quantity: qty}
}

func TestCart_AddMergesLines(t *testing.T) {
	c := NewActive("u1", now)
	if err := c.Add(item("p1", 100, 2), now); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(item("p2", 50, 1), now); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Add(item("p1", 999, 1), now); err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(c.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(c.Items))
	}
	if c.Items[0].ProductID != "p1" || c.Items[0].Quantity != 3 {
		t.Fatalf("unexpected first line %+v", c.Items[0])
	}
	// price snapshot is kept from the first add
	if c.Total != 3*100+50 {
		t.Fatalf("expected total 350, got %d", c.Total)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCart_AddRejectsNonPositive(t *testing.T) {
	c := NewActive("u1", now)
	if err := c.Add(item("p1", 100, 0), now); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if !c.IsEmpty() {
		t.Fatal("cart should stay empty")
	}
}

func TestCart_SetQuantityZeroRemoves(t *testing.T) {
	c := NewActive("u1", now)
	_ = c.Add(item("p1", 100, 3), now)
	_ = c.Add(item("p2", 50, 1), now)

	if err := c.SetQuantity("p1", 0, now); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].ProductID != "p2" {
		t.Fatalf("expected only p2, got %+v", c.Items)
	}
	if c.Total != 50 {
		t.Fatalf("expected total 50, got %d", c.Total)
	}
}

func TestCart_SetQuantityMissingItem(t *testing.T) {
	c := NewActive("u1", now)
	if err := c.SetQuantity("nope", 2, now); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestCart_RemoveIsIdempotent(t *testing.T) {
	c := NewActive("u1", now)
	_ = c.Add(item("p1", 100, 1), now)
	_ = c.Add(item("p2", 50, 2), now)

	removed, err := c.Remove("p1", now)
	if err != nil || !removed {
		t.Fatalf("first remove: removed=%v err=%v", removed, err)
	}
	once := *c
	once.Items = append([]Item(nil), c.Items...)

	removed, err = c.Remove("p1", now)
	if err != nil || removed {
		t.Fatalf("second remove: removed=%v err=%v", removed, err)
	}
	if len(c.Items) != len(once.Items) || c.Total != once.Total {
		t.Fatalf("second remove changed cart: %+v vs %+v", c, once)
	}
}

func TestCart_ClearKeepsIdentity(t *testing.T) {
	c := NewActive("u1", now)
	_ = c.Add(item("p1", 100, 1), now)
	if err := c.Clear(now.Add(time.Minute)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.ID != "u1" || c.Total != 0 || len(c.Items) != 0 {
		t.Fatalf("unexpected cart after clear: %+v", c)
	}
	if !c.CreatedAt.Equal(now) {
		t.Fatalf("createdAt changed: %v", c.CreatedAt)
	}
}

func TestCart_Complete(t *testing.T) {
	c := NewActive("u1", now)
	_ = c.Add(item("p1", 100, 3), now)

	archived, err := c.Complete(ArchiveID("Juan Pérez", 1), "Juan Pérez", 1, now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if archived.ID != "juanperez-compra1" {
		t.Fatalf("unexpected archive id %q", archived.ID)
	}
	if archived.Status != StatusCompleted || archived.CompraNumber != 1 || archived.Total != 300 {
		t.Fatalf("unexpected archive %+v", archived)
	}
	if c.Status != StatusActive {
		t.Fatal("active cart must not be mutated by Complete")
	}

	archived.Items[0].Quantity = 99
	if c.Items[0].Quantity != 3 {
		t.Fatal("archive shares item storage with the active cart")
	}
	if _, err := archived.Complete("x", "y", 2, now); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestCart_CompleteEmpty(t *testing.T) {
	c := NewActive("u1", now)
	if _, err := c.Complete("x-compra1", "x", 1, now); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCart_ValidateDetectsBadTotal(t *testing.T) {
	c := NewActive("u1", now)
	_ = c.Add(item("p1", 100, 2), now)
	c.Total = 150
	if err := c.Validate(); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Juan Pérez":                   "juanperez",
		"  ÁLVARO  Núñez-Ñandú ":       "alvaronuneznandu",
		"":                             "usuario",
		"!!!":                          "usuario",
		"Maximiliano Bartolomé Cortés": "maximilianobartolome",
		"user_42":                      "user42",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArchiveIDs(t *testing.T) {
	if got := ArchiveID("", 3); got != "usuario-compra3" {
		t.Fatalf("unexpected id %q", got)
	}
	if got := DisambiguatedArchiveID("Juan Pérez", 1, "UID-abcdef123"); got != "juanperez-compra1-uidabcde" {
		t.Fatalf("unexpected id %q", got)
	}
}
