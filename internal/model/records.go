// Package model holds the validated record types landed in the bronze layer.
package model

import (
	"fmt"
	"time"
)

// LoadStatus marks the outcome of the extraction that produced a batch.
type LoadStatus string

const (
	LoadSuccess LoadStatus = "SUCCESS"
	LoadError   LoadStatus = "ERROR"
	LoadPartial LoadStatus = "PARTIAL"
)

// Record is one validated bronze-layer row. Key returns the natural
// identifier used for deduplication and upserts.
type Record interface {
	Key() string
}

// CustomerRecord is one downstream customer of an affiliate.
type CustomerRecord struct {
	AffiliateID  string     `json:"affiliate_id"`
	ClientID     string     `json:"client_id"`
	RegisterTime time.Time  `json:"register_time"`
	LoadTime     time.Time  `json:"load_time"`
	LoadStatus   LoadStatus `json:"load_status"`
}

func (r CustomerRecord) Key() string {
	return r.AffiliateID + ":" + r.ClientID
}

// TradeRecord is one trade activity entry. TradeID may be empty on older
// payloads; the key falls back to client and timestamp.
type TradeRecord struct {
	AffiliateID string     `json:"affiliate_id"`
	ClientID    string     `json:"client_id"`
	TradeID     string     `json:"trade_id,omitempty"`
	TradeVolume float64    `json:"trade_volume"`
	TradeTime   time.Time  `json:"trade_time"`
	LoadTime    time.Time  `json:"load_time"`
	LoadStatus  LoadStatus `json:"load_status"`
}

func (r TradeRecord) Key() string {
	if r.TradeID != "" {
		return r.TradeID
	}
	return fmt.Sprintf("%s:%s:%d", r.AffiliateID, r.ClientID, r.TradeTime.UnixMilli())
}

// DepositRecord is one deposit entry, keyed by the upstream order id.
type DepositRecord struct {
	AffiliateID   string     `json:"affiliate_id"`
	ClientID      string     `json:"client_id"`
	OrderID       string     `json:"order_id"`
	DepositTime   time.Time  `json:"deposit_time"`
	DepositCoin   string     `json:"deposit_coin"`
	DepositAmount float64    `json:"deposit_amount"`
	LoadTime      time.Time  `json:"load_time"`
	LoadStatus    LoadStatus `json:"load_status"`
}

func (r DepositRecord) Key() string {
	return r.OrderID
}

// AssetRecord is one client balance snapshot.
type AssetRecord struct {
	AffiliateID string     `json:"affiliate_id"`
	ClientID    string     `json:"client_id"`
	Balance     float64    `json:"balance"`
	UpdateTime  time.Time  `json:"update_time"`
	Remark      string     `json:"remark,omitempty"`
	LoadTime    time.Time  `json:"load_time"`
	LoadStatus  LoadStatus `json:"load_status"`
}

func (r AssetRecord) Key() string {
	return r.AffiliateID + ":" + r.ClientID
}

// AccountInfo is the affiliate's own broker account summary.
type AccountInfo struct {
	AffiliateID string    `json:"affiliate_id"`
	AccountID   string    `json:"account_id"`
	CreateTime  time.Time `json:"create_time"`
}

// FromEpochMillis converts an epoch-millisecond timestamp as delivered by the
// upstream API.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
