package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	quote       *GlobalQuote
	quoteErr    error
	overview    *CompanyOverview
	overviewErr error
	calls       atomic.Int32
}

func (p *fakeProvider) FetchQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	p.calls.Add(1)
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	return p.quote, nil
}

func (p *fakeProvider) FetchOverview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	p.calls.Add(1)
	if p.overviewErr != nil {
		return nil, p.overviewErr
	}
	return p.overview, nil
}

type failingStore struct {
	StockStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, stock *models.Stock) error {
	return s.saveErr
}

func newSync(t *testing.T, provider MarketDataProvider) (*MarketSync, *database.StockRepository) {
	t.Helper()
	repo := database.NewStockRepository(newTestDB(t))
	return NewMarketSync(provider, repo, zerolog.Nop(), time.Second), repo
}

func seedStock(t *testing.T, repo *database.StockRepository, stock *models.Stock) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), stock))
}

func TestMarketSync_NewSymbolIsPersisted(t *testing.T) {
	provider := &fakeProvider{
		quote: &GlobalQuote{Symbol: "AAPL", Price: "189.9800", Change: "1.2300", ChangePercent: "0.6515%", Volume: "51234567"},
		overview: &CompanyOverview{
			Symbol: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ", Sector: "TECHNOLOGY",
			Industry: "ELECTRONIC COMPUTERS", MarketCapitalization: "2950000000000", PERatio: "29.5",
			DividendYield: "0.0051", EPS: "6.43", High52Week: "199.62", Low52Week: "164.08",
		},
	}
	sync, repo := newSync(t, provider)

	result, err := sync.Sync(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, result.State)
	assert.True(t, result.Live())

	stored, err := repo.FindBySymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", stored.Name)
	assert.InDelta(t, 189.98, *stored.Price, 1e-9)
	assert.InDelta(t, 0.6515, *stored.PercentChange, 1e-9)
	assert.Equal(t, int64(51234567), *stored.Volume)
	assert.Equal(t, int64(2950000000000), *stored.MarketCap)
	assert.Equal(t, "NASDAQ", *stored.Market)
	assert.Equal(t, "TECHNOLOGY", *stored.Sector)
	assert.InDelta(t, 29.5, *stored.PERatio, 1e-9)
	require.NotNil(t, stored.LastSyncedAt)
}

func TestMarketSync_QuoteWithoutOverviewKeepsFundamentals(t *testing.T) {
	provider := &fakeProvider{
		quote:       &GlobalQuote{Symbol: "FPT", Price: "75.20", Change: "0.70", ChangePercent: "0.94%", Volume: "1200000"},
		overviewErr: ErrNoData,
	}
	sync, repo := newSync(t, provider)
	seedStock(t, repo, &models.Stock{
		Symbol:    "FPT",
		Name:      "FPT Corporation",
		Price:     ptr(74.50),
		Sector:    ptr("Technology"),
		Industry:  ptr("IT Services"),
		MarketCap: ptr(int64(4_000_000_000)),
	})

	stock, err := sync.GetStock(context.Background(), "FPT")
	require.NoError(t, err)
	assert.InDelta(t, 75.20, *stock.Price, 1e-9)

	stored, err := repo.FindBySymbol(context.Background(), "FPT")
	require.NoError(t, err)
	assert.InDelta(t, 75.20, *stored.Price, 1e-9)
	assert.Equal(t, "FPT Corporation", stored.Name)
	assert.Equal(t, "Technology", *stored.Sector)
	assert.Equal(t, "IT Services", *stored.Industry)
	assert.Equal(t, int64(4_000_000_000), *stored.MarketCap)
}

func TestMarketSync_NetworkErrorFallsBackToStoredRecord(t *testing.T) {
	provider := &fakeProvider{quoteErr: errors.New("dial tcp: connection refused")}
	sync, repo := newSync(t, provider)
	seedStock(t, repo, &models.Stock{Symbol: "VNM", Name: "Vinamilk", Price: ptr(78.50)})

	result, err := sync.Sync(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, StateFound, result.State)
	assert.False(t, result.Live())
	assert.InDelta(t, 78.50, *result.Stock.Price, 1e-9)

	var fetchErr *FetchError
	require.ErrorAs(t, result.Cause, &fetchErr)
	assert.Equal(t, "GLOBAL_QUOTE", fetchErr.Function)
}

func TestMarketSync_OverviewFailureIsTotal(t *testing.T) {
	provider := &fakeProvider{
		quote:       &GlobalQuote{Symbol: "VNM", Price: "80.00"},
		overviewErr: &ProviderError{Function: "OVERVIEW", StatusCode: 500, Message: "boom"},
	}
	sync, repo := newSync(t, provider)
	seedStock(t, repo, &models.Stock{Symbol: "VNM", Name: "Vinamilk", Price: ptr(78.50)})

	result, err := sync.Sync(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, StateFound, result.State)
	assert.InDelta(t, 78.50, *result.Stock.Price, 1e-9)
}

func TestMarketSync_NotFoundAnywhere(t *testing.T) {
	provider := &fakeProvider{quoteErr: ErrNoData, overviewErr: ErrNoData}
	sync, _ := newSync(t, provider)

	_, err := sync.GetStock(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrStockNotFound)

	_, err = sync.GetStock(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrStockNotFound)
}

func TestMarketSync_PersistFailureFallsBack(t *testing.T) {
	provider := &fakeProvider{quote: &GlobalQuote{Symbol: "VNM", Price: "80.00"}, overviewErr: ErrNoData}
	repo := database.NewStockRepository(newTestDB(t))
	seedStock(t, repo, &models.Stock{Symbol: "VNM", Name: "Vinamilk", Price: ptr(78.50)})

	store := &failingStore{StockStore: repo, saveErr: errors.New("disk full")}
	sync := NewMarketSync(provider, store, zerolog.Nop(), time.Second)

	result, err := sync.Sync(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, StateFound, result.State)
	assert.InDelta(t, 78.50, *result.Stock.Price, 1e-9)
	assert.EqualError(t, result.Cause, "disk full")
}

func TestMarketSync_RepeatedSyncKeepsOneRow(t *testing.T) {
	provider := &fakeProvider{
		quote:    &GlobalQuote{Symbol: "MSFT", Price: "410.10", Change: "-2.00", ChangePercent: "-0.48%"},
		overview: &CompanyOverview{Symbol: "MSFT", Name: "Microsoft Corporation", Sector: "TECHNOLOGY"},
	}
	sync, repo := newSync(t, provider)
	ctx := context.Background()

	first, err := sync.GetStock(ctx, "MSFT")
	require.NoError(t, err)
	second, err := sync.GetStock(ctx, "msft")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.Price, *second.Price)
	assert.Equal(t, first.Name, second.Name)

	prices, err := repo.PricesBySymbol(ctx, []string{"MSFT"})
	require.NoError(t, err)
	assert.Len(t, prices, 1)
}

func TestMergeSnapshot_RetainsKnownValues(t *testing.T) {
	stock := &models.Stock{
		Symbol:        "HPG",
		Name:          "Hoa Phat Group",
		Price:         ptr(27.0),
		PercentChange: ptr(1.5),
		Volume:        ptr(int64(900)),
		Sector:        ptr("Materials"),
		PERatio:       ptr(12.0),
	}

	MergeSnapshot(stock, &Snapshot{
		Quote: &GlobalQuote{Price: "None", Change: "0", ChangePercent: "-", Volume: "abc"},
		Overview: &CompanyOverview{
			Name:    "",
			Sector:  "None",
			PERatio: "N/A",
			EPS:     "0",
		},
	})

	assert.Equal(t, "Hoa Phat Group", stock.Name)
	assert.InDelta(t, 27.0, *stock.Price, 1e-9)
	assert.InDelta(t, 1.5, *stock.PercentChange, 1e-9)
	assert.Equal(t, int64(900), *stock.Volume)
	assert.Equal(t, "Materials", *stock.Sector)
	assert.InDelta(t, 12.0, *stock.PERatio, 1e-9)
	// A parsed zero is a real value
	require.NotNil(t, stock.Change)
	assert.Zero(t, *stock.Change)
	require.NotNil(t, stock.EPS)
	assert.Zero(t, *stock.EPS)
}

func TestMergeSnapshot_OutOfRangeCountsKeepStoredValues(t *testing.T) {
	stock := &models.Stock{
		Symbol:    "VNM",
		Name:      "Vinamilk",
		Volume:    ptr(int64(1200)),
		MarketCap: ptr(int64(5_000_000_000)),
	}

	MergeSnapshot(stock, &Snapshot{
		Quote:    &GlobalQuote{Price: "70", Volume: "99999999999999999999"},
		Overview: &CompanyOverview{Name: "Vinamilk", MarketCapitalization: "1e30"},
	})
	assert.Equal(t, int64(1200), *stock.Volume)
	assert.Equal(t, int64(5_000_000_000), *stock.MarketCap)

	MergeSnapshot(stock, &Snapshot{
		Quote:    &GlobalQuote{Volume: "-10"},
		Overview: &CompanyOverview{MarketCapitalization: "-1"},
	})
	assert.Equal(t, int64(1200), *stock.Volume)
	assert.Equal(t, int64(5_000_000_000), *stock.MarketCap)
	assert.InDelta(t, 70.0, *stock.Price, 1e-9)
}

func TestMergeSnapshot_NameDefaultsToSymbol(t *testing.T) {
	stock := &models.Stock{Symbol: "NEW"}
	MergeSnapshot(stock, &Snapshot{Quote: &GlobalQuote{Price: "10"}})
	assert.Equal(t, "NEW", stock.Name)

	MergeSnapshot(stock, nil)
	assert.Equal(t, "NEW", stock.Name)
}

func TestMarketSync_FetchHonoursTimeout(t *testing.T) {
	provider := &blockingProvider{}
	repo := database.NewStockRepository(newTestDB(t))
	sync := NewMarketSync(provider, repo, zerolog.Nop(), 20*time.Millisecond)

	start := time.Now()
	_, err := sync.GetStock(context.Background(), "SLOW")
	assert.ErrorIs(t, err, ErrStockNotFound)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type blockingProvider struct{}

func (blockingProvider) FetchQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) FetchOverview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
