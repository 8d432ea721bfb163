package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrStockNotFound is returned when neither the provider nor the store has the symbol
var ErrStockNotFound = errors.New("stock not found")

// MarketDataProvider is the slice of the provider the synchronizer needs
type MarketDataProvider interface {
	FetchQuote(ctx context.Context, symbol string) (*GlobalQuote, error)
	FetchOverview(ctx context.Context, symbol string) (*CompanyOverview, error)
}

// StockStore persists stock records keyed by symbol
type StockStore interface {
	FindBySymbol(ctx context.Context, symbol string) (*models.Stock, error)
	Save(ctx context.Context, stock *models.Stock) error
}

// SyncState names where a lookup ended
type SyncState string

const (
	StatePersisted SyncState = "PERSISTED"
	StateFound     SyncState = "FOUND"
	StateNotFound  SyncState = "NOT_FOUND"
)

// Snapshot is one successful provider read. Overview is nil when the
// provider has no fundamentals for the symbol.
type Snapshot struct {
	Quote    *GlobalQuote
	Overview *CompanyOverview
}

// FetchError wraps a failed provider read
type FetchError struct {
	Symbol   string
	Function string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Function, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SyncResult is the outcome of a lookup
type SyncResult struct {
	Stock *models.Stock
	State SyncState
	// Cause is the error that sent the lookup to the stored record
	Cause error
}

// Live reports whether the record was refreshed from the provider
func (r *SyncResult) Live() bool {
	return r.State == StatePersisted
}

// MarketSync keeps stored stock records in step with the market-data provider
type MarketSync struct {
	provider MarketDataProvider
	stocks   StockStore
	logger   zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewMarketSync creates a synchronizer. timeout bounds each provider read;
// zero leaves it to the caller's context.
func NewMarketSync(provider MarketDataProvider, stocks StockStore, logger zerolog.Logger, timeout time.Duration) *MarketSync {
	return &MarketSync{
		provider: provider,
		stocks:   stocks,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// GetStock returns the freshest record available for symbol
func (s *MarketSync) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	result, err := s.Sync(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return result.Stock, nil
}

// Sync refreshes symbol from the provider and falls back to the stored
// record when the refresh fails at any step.
func (s *MarketSync) Sync(ctx context.Context, symbol string) (*SyncResult, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrStockNotFound
	}

	snapshot, err := s.Fetch(ctx, symbol)
	if err == nil {
		var stock *models.Stock
		stock, err = s.Apply(ctx, symbol, snapshot)
		if err == nil {
			return &SyncResult{Stock: stock, State: StatePersisted}, nil
		}
	}

	s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Stock refresh failed, reading stored record")

	stock, fallbackErr := s.Fallback(ctx, symbol)
	if fallbackErr != nil {
		s.logger.Debug().Str("symbol", symbol).Str("state", string(StateNotFound)).Msg("No stored record")
		return nil, fallbackErr
	}
	return &SyncResult{Stock: stock, State: StateFound, Cause: err}, nil
}

// Fetch reads quote and overview concurrently. A missing overview is not a
// failure; every other error from either call is.
func (s *MarketSync) Fetch(ctx context.Context, symbol string) (*Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var snapshot Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		quote, err := s.provider.FetchQuote(gctx, symbol)
		if err != nil {
			return &FetchError{Symbol: symbol, Function: "GLOBAL_QUOTE", Err: err}
		}
		snapshot.Quote = quote
		return nil
	})

	g.Go(func() error {
		overview, err := s.provider.FetchOverview(gctx, symbol)
		if errors.Is(err, ErrNoData) {
			return nil
		}
		if err != nil {
			return &FetchError{Symbol: symbol, Function: "OVERVIEW", Err: err}
		}
		snapshot.Overview = overview
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Apply merges snapshot onto the stored record (or a new one) and persists it
func (s *MarketSync) Apply(ctx context.Context, symbol string, snapshot *Snapshot) (*models.Stock, error) {
	stock, err := s.stocks.FindBySymbol(ctx, symbol)
	if errors.Is(err, database.ErrNotFound) {
		stock = &models.Stock{Symbol: symbol}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load stock %s: %w", symbol, err)
	}

	MergeSnapshot(stock, snapshot)
	synced := s.now()
	stock.LastSyncedAt = &synced

	if err := s.stocks.Save(ctx, stock); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("symbol", symbol).Msg("Stock refreshed from provider")
	return stock, nil
}

// Fallback loads the stored record for symbol
func (s *MarketSync) Fallback(ctx context.Context, symbol string) (*models.Stock, error) {
	stock, err := s.stocks.FindBySymbol(ctx, symbol)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStockNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock %s: %w", symbol, err)
	}
	return stock, nil
}

// MergeSnapshot overwrites a field only when the provider supplied a usable
// value for it. Known values are never cleared by a partial response.
func MergeSnapshot(stock *models.Stock, snapshot *Snapshot) {
	if snapshot == nil {
		return
	}

	if q := snapshot.Quote; q != nil {
		setFloat(&stock.Price, parseNumber(q.Price))
		setFloat(&stock.Change, parseNumber(q.Change))
		setFloat(&stock.PercentChange, parsePercent(q.ChangePercent))
		setInt(&stock.Volume, parseCount(q.Volume))
	}

	if o := snapshot.Overview; o != nil {
		if name := parseText(o.Name); name != nil {
			stock.Name = *name
		}
		setText(&stock.Market, parseText(o.Exchange))
		setText(&stock.Sector, parseText(o.Sector))
		setText(&stock.Industry, parseText(o.Industry))
		setInt(&stock.MarketCap, parseCount(o.MarketCapitalization))
		setFloat(&stock.PERatio, parseNumber(o.PERatio))
		setFloat(&stock.DividendYield, parseNumber(o.DividendYield))
		setFloat(&stock.EPS, parseNumber(o.EPS))
		setFloat(&stock.High52Week, parseNumber(o.High52Week))
		setFloat(&stock.Low52Week, parseNumber(o.Low52Week))
	}

	if stock.Name == "" {
		stock.Name = stock.Symbol
	}
}

func setFloat(dst **float64, v *float64) {
	if v != nil {
		*dst = v
	}
}

func setInt(dst **int64, v *int64) {
	if v != nil {
		*dst = v
	}
}

func setText(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}
