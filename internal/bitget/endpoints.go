package bitget

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"affiliateflow/internal/model"
	"affiliateflow/logger"
)

// Raw wire shapes. The upstream uses epoch-millisecond integers (sometimes
// serialized as strings) for timestamps, and "volumn" for trade volume.
type rawCustomer struct {
	UID          string      `json:"uid"`
	RegisterTime json.Number `json:"registerTime"`
}

type rawTrade struct {
	UID     string      `json:"uid"`
	TradeID string      `json:"tradeId"`
	Volume  json.Number `json:"volumn"`
	Time    json.Number `json:"time"`
}

type rawDeposit struct {
	UID           string      `json:"uid"`
	OrderID       string      `json:"orderId"`
	DepositTime   json.Number `json:"depositTime"`
	DepositCoin   string      `json:"depositCoin"`
	DepositAmount json.Number `json:"depositAmount"`
}

type rawAsset struct {
	UID     string      `json:"uid"`
	Balance json.Number `json:"balance"`
	UTime   json.Number `json:"uTime"`
	Remark  string      `json:"remark"`
}

type rawAccountInfo struct {
	AccountID  string      `json:"accountId"`
	CreateTime json.Number `json:"createTime"`
}

// CustomerList fetches one page of the affiliate's downstream customers.
// Entries failing validation are logged and skipped; the second return value
// is the number of discarded entries.
func (c *Client) CustomerList(ctx context.Context, affiliateID string, pageNo, pageSize int) ([]model.CustomerRecord, int, error) {
	params := map[string]string{
		"pageNo":   strconv.Itoa(pageNo),
		"pageSize": strconv.Itoa(pageSize),
	}
	envelope, err := c.request(ctx, affiliateID, "POST", endpointCustomerList, params)
	if err != nil {
		return nil, 0, err
	}

	loadTime := c.now().UTC()
	records := make([]model.CustomerRecord, 0, len(envelope.Data))
	dropped := 0
	for _, raw := range envelope.Data {
		var entry rawCustomer
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.discard(affiliateID, endpointCustomerList, err)
			dropped++
			continue
		}
		registerMs, err := entry.RegisterTime.Int64()
		if entry.UID == "" || err != nil {
			c.discard(affiliateID, endpointCustomerList, errMissingField(entry.UID, err))
			dropped++
			continue
		}
		records = append(records, model.CustomerRecord{
			AffiliateID:  affiliateID,
			ClientID:     entry.UID,
			RegisterTime: model.FromEpochMillis(registerMs),
			LoadTime:     loadTime,
			LoadStatus:   model.LoadSuccess,
		})
	}
	return records, dropped, nil
}

// TradeActivities fetches one page of trade activity inside [start, end).
// clientID is optional; when empty the page covers all of the affiliate's
// clients.
func (c *Client) TradeActivities(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.TradeRecord, int, error) {
	envelope, err := c.request(ctx, affiliateID, "POST", endpointTradeList,
		windowParams(clientID, pageNo, pageSize, start, end))
	if err != nil {
		return nil, 0, err
	}

	loadTime := c.now().UTC()
	records := make([]model.TradeRecord, 0, len(envelope.Data))
	dropped := 0
	for _, raw := range envelope.Data {
		var entry rawTrade
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.discard(affiliateID, endpointTradeList, err)
			dropped++
			continue
		}
		volume, verr := entry.Volume.Float64()
		tradeMs, terr := entry.Time.Int64()
		if entry.UID == "" || verr != nil || terr != nil || volume < 0 {
			c.discard(affiliateID, endpointTradeList, errMissingField(entry.UID, verr, terr))
			dropped++
			continue
		}
		records = append(records, model.TradeRecord{
			AffiliateID: affiliateID,
			ClientID:    entry.UID,
			TradeID:     entry.TradeID,
			TradeVolume: volume,
			TradeTime:   model.FromEpochMillis(tradeMs),
			LoadTime:    loadTime,
			LoadStatus:  model.LoadSuccess,
		})
	}
	return records, dropped, nil
}

// Deposits fetches one page of deposit history inside [start, end).
func (c *Client) Deposits(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.DepositRecord, int, error) {
	envelope, err := c.request(ctx, affiliateID, "POST", endpointDepositList,
		windowParams(clientID, pageNo, pageSize, start, end))
	if err != nil {
		return nil, 0, err
	}

	loadTime := c.now().UTC()
	records := make([]model.DepositRecord, 0, len(envelope.Data))
	dropped := 0
	for _, raw := range envelope.Data {
		var entry rawDeposit
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.discard(affiliateID, endpointDepositList, err)
			dropped++
			continue
		}
		amount, aerr := entry.DepositAmount.Float64()
		depositMs, terr := entry.DepositTime.Int64()
		if entry.UID == "" || entry.OrderID == "" || aerr != nil || terr != nil || amount < 0 {
			c.discard(affiliateID, endpointDepositList, errMissingField(entry.UID, aerr, terr))
			dropped++
			continue
		}
		records = append(records, model.DepositRecord{
			AffiliateID:   affiliateID,
			ClientID:      entry.UID,
			OrderID:       entry.OrderID,
			DepositTime:   model.FromEpochMillis(depositMs),
			DepositCoin:   entry.DepositCoin,
			DepositAmount: amount,
			LoadTime:      loadTime,
			LoadStatus:    model.LoadSuccess,
		})
	}
	return records, dropped, nil
}

// Assets fetches one page of client balance snapshots inside [start, end).
func (c *Client) Assets(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.AssetRecord, int, error) {
	envelope, err := c.request(ctx, affiliateID, "POST", endpointAssetList,
		windowParams(clientID, pageNo, pageSize, start, end))
	if err != nil {
		return nil, 0, err
	}

	loadTime := c.now().UTC()
	records := make([]model.AssetRecord, 0, len(envelope.Data))
	dropped := 0
	for _, raw := range envelope.Data {
		var entry rawAsset
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.discard(affiliateID, endpointAssetList, err)
			dropped++
			continue
		}
		balance, berr := entry.Balance.Float64()
		updateMs, terr := entry.UTime.Int64()
		if entry.UID == "" || berr != nil || terr != nil || balance < 0 {
			c.discard(affiliateID, endpointAssetList, errMissingField(entry.UID, berr, terr))
			dropped++
			continue
		}
		records = append(records, model.AssetRecord{
			AffiliateID: affiliateID,
			ClientID:    entry.UID,
			Balance:     balance,
			UpdateTime:  model.FromEpochMillis(updateMs),
			Remark:      entry.Remark,
			LoadTime:    loadTime,
			LoadStatus:  model.LoadSuccess,
		})
	}
	return records, dropped, nil
}

// AccountInfo fetches the affiliate's own broker account summary.
func (c *Client) AccountInfo(ctx context.Context, affiliateID string) (model.AccountInfo, error) {
	envelope, err := c.request(ctx, affiliateID, "GET", endpointAccountInfo, nil)
	if err != nil {
		return model.AccountInfo{}, err
	}
	info := model.AccountInfo{AffiliateID: affiliateID}
	if len(envelope.Data) == 0 {
		return info, nil
	}
	var entry rawAccountInfo
	if err := json.Unmarshal(envelope.Data[0], &entry); err != nil {
		return model.AccountInfo{}, &APIError{AffiliateID: affiliateID, Endpoint: endpointAccountInfo, Err: err}
	}
	info.AccountID = entry.AccountID
	if ms, err := entry.CreateTime.Int64(); err == nil {
		info.CreateTime = model.FromEpochMillis(ms)
	}
	return info, nil
}

func windowParams(clientID string, pageNo, pageSize int, start, end time.Time) map[string]string {
	params := map[string]string{
		"pageNo":    strconv.Itoa(pageNo),
		"pageSize":  strconv.Itoa(pageSize),
		"startTime": strconv.FormatInt(start.UnixMilli(), 10),
		"endTime":   strconv.FormatInt(end.UnixMilli(), 10),
	}
	if clientID != "" {
		params["clientId"] = clientID
	}
	return params
}

// discard logs a validation failure for a single entry. A bad entry never
// fails the page.
func (c *Client) discard(affiliateID, endpoint string, err error) {
	c.log.WithComponent("bitget_client").WithFields(logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     endpoint,
	}).WithError(err).Warn("discarding invalid record")
}

type fieldError struct {
	uid  string
	errs []error
}

func errMissingField(uid string, errs ...error) error {
	return &fieldError{uid: uid, errs: errs}
}

func (e *fieldError) Error() string {
	msg := "record failed validation"
	if e.uid != "" {
		msg += " uid=" + e.uid
	}
	for _, err := range e.errs {
		if err != nil {
			msg += ": " + err.Error()
		}
	}
	return msg
}
