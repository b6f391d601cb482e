// Package extract implements the incremental extraction engine: pagination,
// time windowing, seen-set deduplication and checkpoint advancement per
// (affiliate, endpoint) pair.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliateflow/config"
	"affiliateflow/internal/checkpoint"
	"affiliateflow/internal/model"
	"affiliateflow/logger"
)

// Endpoint names double as bronze partition directories and checkpoint keys.
const (
	EndpointCustomerList = "customer_list"
	EndpointTrades       = "trade_activities"
	EndpointDeposits     = "deposits"
	EndpointAssets       = "assets"
)

// BrokerAPI is the slice of the signed client the extractor needs. Each call
// returns the page's valid records and the count of discarded entries.
type BrokerAPI interface {
	CustomerList(ctx context.Context, affiliateID string, pageNo, pageSize int) ([]model.CustomerRecord, int, error)
	TradeActivities(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.TradeRecord, int, error)
	Deposits(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.DepositRecord, int, error)
	Assets(ctx context.Context, affiliateID, clientID string, pageNo, pageSize int, start, end time.Time) ([]model.AssetRecord, int, error)
}

// Sink persists one validated batch with its provenance metadata.
type Sink interface {
	Save(ctx context.Context, records []model.Record, endpoint, affiliateID string, batch int, status model.LoadStatus) error
}

// Options scopes one run. A non-zero Start or End marks a manual backfill;
// backfills never advance the checkpoint. ClientID narrows the windowed
// endpoints to one client and skips the affiliate-level customer list.
type Options struct {
	ClientID string
	Start    time.Time
	End      time.Time
}

// Extractor drives the per-endpoint policies for one run. It is not safe for
// concurrent use against the same affiliate; run one extraction per affiliate
// at a time.
type Extractor struct {
	api      BrokerAPI
	sink     Sink
	state    *checkpoint.Store
	pageSize int
	window   time.Duration
	lookback time.Duration
	log      *logger.Log
	now      func() time.Time
}

func New(api BrokerAPI, sink Sink, state *checkpoint.Store, cfg config.ETLConfig) *Extractor {
	return &Extractor{
		api:      api,
		sink:     sink,
		state:    state,
		pageSize: cfg.PageSize,
		window:   time.Duration(cfg.WindowMinutes) * time.Minute,
		lookback: time.Duration(cfg.LookbackMinutes) * time.Minute,
		log:      logger.GetLogger(),
		now:      time.Now,
	}
}

// endpoint describes one windowed extraction target: a name and a page
// fetcher. One descriptor per entity replaces a subclass per entity.
type endpoint struct {
	name  string
	fetch func(ctx context.Context, page int, start, end time.Time) ([]model.Record, int, error)
}

// ExtractCustomerList pages through the affiliate's full customer list,
// deduplicated by the persisted seen-identifier set. The upstream endpoint has no reliable
// time filter and re-returns old entries on every poll, so identifier
// suppression is what keeps bronze duplicate-free.
//
// Known limitation: the short-page termination heuristic assumes page_size is
// stable across runs.
func (e *Extractor) ExtractCustomerList(ctx context.Context, affiliateID string) (err error) {
	log := e.log.WithComponent("extractor").WithFields(logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     EndpointCustomerList,
	})

	seen, err := e.state.LoadSeen(affiliateID)
	if err != nil {
		return err
	}
	// Identifiers are only added after their batch reached bronze, so the
	// set is safe to persist even when a later page fails.
	defer func() {
		if !seen.Dirty() {
			return
		}
		if saveErr := e.state.SaveSeen(affiliateID, seen); saveErr != nil {
			log.WithError(saveErr).Error("failed to persist seen set")
			if err == nil {
				err = saveErr
			}
		}
	}()

	total := 0
	for page := 1; ; page++ {
		records, dropped, fetchErr := e.api.CustomerList(ctx, affiliateID, page, e.pageSize)
		if fetchErr != nil {
			log.WithError(fetchErr).WithFields(logger.Fields{"page": page}).Error("customer list page failed")
			return fetchErr
		}

		fresh := make([]model.Record, 0, len(records))
		for _, r := range records {
			if !seen.Contains(r.Key()) {
				fresh = append(fresh, r)
			}
		}
		// Either no more data, or everything remaining was already seen.
		if len(fresh) == 0 {
			log.WithFields(logger.Fields{"page": page}).Debug("no new customers; stopping pagination")
			break
		}

		status := model.LoadSuccess
		if dropped > 0 {
			status = model.LoadPartial
		}
		if saveErr := e.sink.Save(ctx, fresh, EndpointCustomerList, affiliateID, page, status); saveErr != nil {
			log.WithError(saveErr).WithFields(logger.Fields{"page": page}).Error("bronze save failed")
			return saveErr
		}
		for _, r := range fresh {
			seen.Add(r.Key())
		}
		total += len(fresh)

		// A short page signals end of data.
		if len(records) < e.pageSize {
			break
		}
	}

	log.WithFields(logger.Fields{"new_records": total, "seen_total": seen.Len()}).Info("customer list extraction complete")
	e.log.LogMetric("extractor", "customers_extracted", total, "counter", logger.Fields{"affiliate_id": affiliateID})
	return nil
}

// ExtractTradeActivities extracts the next trade window.
func (e *Extractor) ExtractTradeActivities(ctx context.Context, affiliateID, clientID string, opts Options) error {
	return e.extractWindow(ctx, affiliateID, endpoint{
		name: EndpointTrades,
		fetch: func(ctx context.Context, page int, start, end time.Time) ([]model.Record, int, error) {
			records, dropped, err := e.api.TradeActivities(ctx, affiliateID, clientID, page, e.pageSize, start, end)
			return asRecords(records), dropped, err
		},
	}, opts)
}

// ExtractDeposits extracts the next deposit window.
func (e *Extractor) ExtractDeposits(ctx context.Context, affiliateID, clientID string, opts Options) error {
	return e.extractWindow(ctx, affiliateID, endpoint{
		name: EndpointDeposits,
		fetch: func(ctx context.Context, page int, start, end time.Time) ([]model.Record, int, error) {
			records, dropped, err := e.api.Deposits(ctx, affiliateID, clientID, page, e.pageSize, start, end)
			return asRecords(records), dropped, err
		},
	}, opts)
}

// ExtractAssets extracts the next balance snapshot window.
func (e *Extractor) ExtractAssets(ctx context.Context, affiliateID, clientID string, opts Options) error {
	return e.extractWindow(ctx, affiliateID, endpoint{
		name: EndpointAssets,
		fetch: func(ctx context.Context, page int, start, end time.Time) ([]model.Record, int, error) {
			records, dropped, err := e.api.Assets(ctx, affiliateID, clientID, page, e.pageSize, start, end)
			return asRecords(records), dropped, err
		},
	}, opts)
}

// extractWindow resolves the [start, end) window, paginates it, and advances
// the checkpoint only when the whole window succeeded and both bounds were
// defaulted. The checkpoint never moves past data that did not
// reach bronze.
func (e *Extractor) extractWindow(ctx context.Context, affiliateID string, ep endpoint, opts Options) error {
	log := e.log.WithComponent("extractor").WithFields(logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     ep.name,
	})

	// Explicit bounds mean a manual backfill; those must not move the cursor.
	defaulted := opts.Start.IsZero() && opts.End.IsZero()

	start := opts.Start
	if start.IsZero() {
		cp, ok, err := e.state.Load(affiliateID, ep.name)
		if err != nil {
			return err
		}
		if ok {
			start = cp
		} else {
			start = e.now().UTC().Add(-e.lookback)
		}
	}
	end := opts.End
	if end.IsZero() {
		end = start.Add(e.window)
	}
	if !end.After(start) {
		return fmt.Errorf("invalid window for %s/%s: start %v is not before end %v", affiliateID, ep.name, start, end)
	}

	log.WithFields(logger.Fields{
		"start_time": start.UnixMilli(),
		"end_time":   end.UnixMilli(),
		"backfill":   !defaulted,
	}).Info("extracting window")

	total := 0
	for page := 1; ; page++ {
		records, dropped, err := ep.fetch(ctx, page, start, end)
		if err != nil {
			// Abort the window; the untouched checkpoint makes the next run
			// retry the same window.
			log.WithError(err).WithFields(logger.Fields{"page": page}).Error("window page failed; checkpoint not advanced")
			return err
		}
		if len(records) == 0 {
			break
		}

		status := model.LoadSuccess
		if dropped > 0 {
			status = model.LoadPartial
		}
		if err := e.sink.Save(ctx, records, ep.name, affiliateID, page, status); err != nil {
			log.WithError(err).WithFields(logger.Fields{"page": page}).Error("bronze save failed; checkpoint not advanced")
			return err
		}
		total += len(records)

		if len(records) < e.pageSize {
			break
		}
	}

	if defaulted {
		if err := e.state.Save(affiliateID, ep.name, end); err != nil {
			return fmt.Errorf("advance checkpoint %s/%s: %w", affiliateID, ep.name, err)
		}
	}

	log.WithFields(logger.Fields{"records": total}).Info("window extraction complete")
	e.log.LogMetric("extractor", "records_extracted", total, "counter", logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     ep.name,
	})
	return nil
}

// RunETL extracts every endpoint for one affiliate. The customer list is
// affiliate-level and only runs when the call is not scoped to one client.
// Endpoint failures are isolated so one bad window does not starve the rest;
// the joined error still fails the affiliate's run.
func (e *Extractor) RunETL(ctx context.Context, affiliateID string, opts Options) error {
	log := e.log.WithComponent("extractor").WithFields(logger.Fields{"affiliate_id": affiliateID})
	log.Info("starting ETL run")

	var errs []error
	if opts.ClientID == "" {
		if err := e.ExtractCustomerList(ctx, affiliateID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EndpointCustomerList, err))
		}
	}
	if err := e.ExtractTradeActivities(ctx, affiliateID, opts.ClientID, opts); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EndpointTrades, err))
	}
	if err := e.ExtractDeposits(ctx, affiliateID, opts.ClientID, opts); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EndpointDeposits, err))
	}
	if err := e.ExtractAssets(ctx, affiliateID, opts.ClientID, opts); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EndpointAssets, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info("ETL run complete")
	return nil
}

func asRecords[T model.Record](in []T) []model.Record {
	out := make([]model.Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}
