package domain

import (
	"errors"
	"testing"
	"time"
)

func spec(total int64, items ...OrderItem) Spec {
	return Spec{Customer: Customer{UserID: "u1", Name: "Ana"}, Items: items, Total: total}
}

func TestNewOrder_Validation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{"empty items", spec(0), ErrEmptyItems},
		{"total mismatch", spec(199, OrderItem{ProductID: "p1", Price: 100, Quantity: 2}), ErrInvalidTotal},
		{"zero quantity", spec(0, OrderItem{ProductID: "p1", Price: 100, Quantity: 0}), ErrInvalidItem},
		{"ok", spec(250, OrderItem{ProductID: "p1", Price: 100, Quantity: 2}, OrderItem{ProductID: "p2", Price: 50, Quantity: 1}), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := NewOrder("o1", tc.spec, "", now)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if o.Status != StatusPending || o.Source != SourceDirect {
					t.Fatalf("unexpected order %+v", o)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewOrder_SnapshotIsIndependent(t *testing.T) {
	s := spec(200, OrderItem{ProductID: "p1", Price: 100, Quantity: 2})
	o, err := NewOrder("o1", s, SourceCart, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	s.Items[0].Price = 1
	if o.Items[0].Price != 100 {
		t.Fatal("order items alias the spec")
	}
}

func TestTransition_Graph(t *testing.T) {
	all := []OrderStatus{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	allowed := map[[2]OrderStatus]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusProcessing, StatusCancelled}: true,
		{StatusShipped, StatusDelivered}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			o := Order{ID: "o1", Status: from}
			err := o.Transition(to, time.Now())
			if allowed[[2]OrderStatus{from, to}] {
				if err != nil || o.Status != to {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}
			if o.Status != from {
				t.Errorf("%s -> %s: status changed on rejection", from, to)
			}
		}
	}
}

func TestTransition_ShippedOnlyDelivers(t *testing.T) {
	o := Order{ID: "o1", Status: StatusShipped}
	if err := o.Transition(StatusPending, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := o.Transition(StatusDelivered, time.Now()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := o.Transition(StatusCancelled, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !o.Status.Terminal() {
		t.Fatal("delivered should be terminal")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" Shipped "); err != nil || s != StatusShipped {
		t.Fatalf("got %q %v", s, err)
	}
	if _, err := ParseStatus("paid"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}
