package model

import (
	"testing"
	"time"
)

func TestCustomerKey(t *testing.T) {
	r := CustomerRecord{AffiliateID: "A1", ClientID: "c9"}
	if got := r.Key(); got != "A1:c9" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestTradeKeyFallback(t *testing.T) {
	ts := time.UnixMilli(1700000000000).UTC()
	withID := TradeRecord{TradeID: "t1", AffiliateID: "A1", ClientID: "c1", TradeTime: ts}
	if got := withID.Key(); got != "t1" {
		t.Fatalf("expected trade id key, got %s", got)
	}
	withoutID := TradeRecord{AffiliateID: "A1", ClientID: "c1", TradeTime: ts}
	if got := withoutID.Key(); got != "A1:c1:1700000000000" {
		t.Fatalf("unexpected fallback key: %s", got)
	}
}

func TestDepositKey(t *testing.T) {
	r := DepositRecord{OrderID: "ord-7", AffiliateID: "A1"}
	if got := r.Key(); got != "ord-7" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestFromEpochMillis(t *testing.T) {
	got := FromEpochMillis(1700000000000)
	want := time.UnixMilli(1700000000000).UTC()
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
}
