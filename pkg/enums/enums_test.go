package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, status := range validOrderStatuses {
		got, err := ParseOrderStatus(string(status))
		if err != nil || got != status {
			t.Fatalf("ParseOrderStatus(%q) = %q, %v", status, got, err)
		}
	}
	if _, err := ParseOrderStatus("paid"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if !OrderStatusCompleted.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Fatal("completed and cancelled are terminal")
	}
	if OrderStatusConfirmed.IsTerminal() {
		t.Fatal("confirmed is not terminal")
	}
}

func TestParseMemberRoleIgnoresCase(t *testing.T) {
	role, err := ParseMemberRole(" Wholesaler ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != MemberRoleWholesaler {
		t.Fatalf("expected wholesaler, got %q", role)
	}
	if _, err := ParseMemberRole("owner"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventOrderPaid.IsValid() || OutboxEventType("order_created").IsValid() {
		t.Fatal("unexpected event type validity")
	}
	if _, err := ParseOutboxAggregateType("settlement"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseSettlementStatus("paid_out"); err == nil {
		t.Fatal("expected unknown settlement status to fail")
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusConfirmed},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusConfirmed, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusCompleted},
	}
	for _, pair := range allowed {
		if !pair[0].CanTransitionTo(pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}
	denied := [][2]OrderStatus{
		{OrderStatusConfirmed, OrderStatusCancelled},
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusPending, OrderStatusShipped},
		{OrderStatusCompleted, OrderStatusShipped},
		{OrderStatusCancelled, OrderStatusPending},
	}
	for _, pair := range denied {
		if pair[0].CanTransitionTo(pair[1]) {
			t.Fatalf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}
