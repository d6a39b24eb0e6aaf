package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

type fakeRealtime struct {
	quotes map[string]models.Quote
}

func (f *fakeRealtime) SnapshotAll(ctx context.Context, opts interfaces.SnapshotOptions) (*models.Snapshot, error) {
	return &models.Snapshot{}, nil
}
func (f *fakeRealtime) SnapshotOne(ctx context.Context, symbol string) (*models.Quote, error) {
	if q, ok := f.quotes[symbol]; ok {
		return &q, nil
	}
	return nil, common.NewError(common.KindNotFound, "no quote for %s", symbol)
}
func (f *fakeRealtime) Stats() []models.ProviderStats { return nil }

type fakeStrategy struct {
	signals map[string][]models.Signal
}

func (f *fakeStrategy) RecomputeAll(ctx context.Context, opts interfaces.RecomputeOptions) (int, error) {
	return 0, nil
}
func (f *fakeStrategy) Strategies() []string { return nil }
func (f *fakeStrategy) AllSignals(ctx context.Context) ([]models.Signal, error) {
	var out []models.Signal
	for _, group := range f.signals {
		out = append(out, group...)
	}
	return out, nil
}
func (f *fakeStrategy) SignalsFor(ctx context.Context, strategy string) ([]models.Signal, error) {
	return f.signals[strategy], nil
}

type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { select {} }
func (fakeConn) WriteMessage(int, []byte) error    { return nil }
func (fakeConn) SetReadLimit(int64)                {}
func (fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (fakeConn) SetPongHandler(func(string) error) {}
func (fakeConn) Close() error                      { return nil }

func fixedClock() time.Time {
	return time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
}

func newTestHub(opts ...Option) (*Hub, *fakeRealtime, *fakeStrategy) {
	rt := &fakeRealtime{quotes: map[string]models.Quote{
		"600000": {Code: "600000", Name: "浦发银行", Price: 10.5, Change: 0.2, ChangePercent: 1.9, Volume: 1e6},
		"000001": {Code: "000001", Name: "平安银行", Price: 12.0, Change: -0.1, ChangePercent: -0.8, Volume: 2e6},
	}}
	st := &fakeStrategy{signals: map[string][]models.Signal{
		models.StrategyVolumeWave: {
			{Code: "600000", Name: "浦发银行", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy, Price: 10.5, ChangePercent: 1.9, Volume: 1e6},
			{Code: "000001", Name: "平安银行", Strategy: models.StrategyVolumeWave, SignalType: models.SignalBuy, Price: 12.0, ChangePercent: -0.8, Volume: 2e6},
		},
	}}
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	h := New(rt, st, common.NewSilentLogger(), opts...)
	return h, rt, st
}

func connect(h *Hub, id string) *client {
	c := newClient(h, id, fakeConn{})
	h.register(c)
	return c
}

// nextFrame pops one queued frame, failing if none is pending.
func nextFrame(t *testing.T, c *client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	default:
		t.Fatalf("client %s has no pending frame", c.id)
		return nil
	}
}

func noFrame(t *testing.T, c *client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("client %s has unexpected frame: %s", c.id, data)
	default:
	}
}

func TestSubscribeAckAndPong(t *testing.T) {
	h, _, _ := newTestHub()
	c := connect(h, "alpha")

	h.handleMessage(c, []byte(`{"type":"subscribe","subscription_type":"stock","target":"600000"}`))
	var ack models.WSAck
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &ack))
	assert.Equal(t, models.WSTypeSubscribed, ack.Type)
	assert.Equal(t, "alpha", ack.ClientID)
	assert.Equal(t, "600000", ack.Target)
	assert.Equal(t, "2026-08-24 10:30:00", ack.Timestamp)

	h.handleMessage(c, []byte(`{"type":"ping"}`))
	var pong models.WSPong
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &pong))
	assert.Equal(t, models.WSTypePong, pong.Type)
}

func TestUnknownMessageTypeAndKind(t *testing.T) {
	h, _, _ := newTestHub()
	c := connect(h, "alpha")

	h.handleMessage(c, []byte(`{"type":"teleport"}`))
	var wsErr models.WSError
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &wsErr))
	assert.Equal(t, models.WSTypeError, wsErr.Type)

	h.handleMessage(c, []byte(`{"type":"subscribe","subscription_type":"sector","target":"banks"}`))
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &wsErr))
	assert.Equal(t, models.WSTypeError, wsErr.Type)
	assert.Contains(t, wsErr.Details, "sector")

	h.handleMessage(c, []byte(`not json`))
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &wsErr))
	assert.Equal(t, models.WSTypeError, wsErr.Type)
}

func TestSubscribeUnknownStrategyIsAccepted(t *testing.T) {
	h, _, _ := newTestHub()
	c := connect(h, "alpha")

	h.handleMessage(c, []byte(`{"type":"subscribe","subscription_type":"strategy","target":"does_not_exist"}`))
	var ack models.WSAck
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &ack))
	assert.Equal(t, models.WSTypeSubscribed, ack.Type)
	assert.Len(t, h.subscribers(models.SubKindStrategy, "does_not_exist"), 1)
}

func TestDuplicateClientIDEvictsPrior(t *testing.T) {
	h, _, _ := newTestHub()
	first := connect(h, "alpha")
	second := connect(h, "alpha")

	assert.Equal(t, 1, h.ClientCount())
	_, open := <-first.send
	assert.False(t, open, "evicted client's send channel is closed")

	// The surviving connection still works.
	h.handleMessage(second, []byte(`{"type":"ping"}`))
	nextFrame(t, second)
}

func TestDisconnectDropsSubscriptions(t *testing.T) {
	h, _, _ := newTestHub()
	c := connect(h, "alpha")
	require.NoError(t, h.subscribe(c, models.SubKindStock, "600000"))
	require.NoError(t, h.subscribe(c, models.SubKindStrategy, models.StrategyVolumeWave))

	h.disconnect(c)

	assert.Zero(t, h.ClientCount())
	assert.Empty(t, h.subscribers(models.SubKindStock, "600000"))
	assert.Empty(t, h.subscribers(models.SubKindStrategy, models.StrategyVolumeWave))
	assert.Empty(t, h.subscriptionList("alpha"))
}

func TestPublishStrategyPrices(t *testing.T) {
	h, _, _ := newTestHub()
	subscriber := connect(h, "subscriber")
	bystander := connect(h, "bystander")
	require.NoError(t, h.subscribe(subscriber, models.SubKindStrategy, models.StrategyVolumeWave))
	require.NoError(t, h.subscribe(bystander, models.SubKindStock, "999999"))

	require.NoError(t, h.PublishStrategyPrices(context.Background(), models.StrategyVolumeWave))

	var update models.WSPriceUpdate
	require.NoError(t, json.Unmarshal(nextFrame(t, subscriber), &update))
	assert.Equal(t, models.WSTypePriceUpdate, update.Type)
	assert.Equal(t, 2, update.Count)
	require.Len(t, update.Data, 2)
	assert.Equal(t, "600000", update.Data[0].Code)
	assert.InDelta(t, 10.5, update.Data[0].Price, 0.0001)

	noFrame(t, bystander)
}

func TestPublishStockPricesMergesPerClient(t *testing.T) {
	h, _, _ := newTestHub()
	both := connect(h, "both")
	oneOnly := connect(h, "one")
	require.NoError(t, h.subscribe(both, models.SubKindStock, "600000"))
	require.NoError(t, h.subscribe(both, models.SubKindStock, "000001"))
	require.NoError(t, h.subscribe(oneOnly, models.SubKindStock, "600000"))

	require.NoError(t, h.PublishStockPrices(context.Background(), []string{"600000", "000001", "999999"}))

	var update models.WSPriceUpdate
	require.NoError(t, json.Unmarshal(nextFrame(t, both), &update))
	assert.Equal(t, 2, update.Count, "one merged message for both codes")
	noFrame(t, both)

	require.NoError(t, json.Unmarshal(nextFrame(t, oneOnly), &update))
	assert.Equal(t, 1, update.Count)
	assert.Equal(t, "600000", update.Data[0].Code)
}

func TestMarketSubscriberSeesEverything(t *testing.T) {
	h, _, _ := newTestHub()
	watcher := connect(h, "watcher")
	stockSub := connect(h, "stock-sub")
	require.NoError(t, h.subscribe(watcher, models.SubKindMarket, "all"))
	require.NoError(t, h.subscribe(stockSub, models.SubKindStock, "600000"))

	h.BroadcastAllActive(context.Background())

	// The stock subscriber drove the active-target list; the market
	// watcher receives the same update without naming the code.
	var update models.WSPriceUpdate
	require.NoError(t, json.Unmarshal(nextFrame(t, watcher), &update))
	assert.Equal(t, "600000", update.Data[0].Code)
	require.NoError(t, json.Unmarshal(nextFrame(t, stockSub), &update))
	assert.Equal(t, "600000", update.Data[0].Code)
}

func TestPublishSignalUpdate(t *testing.T) {
	h, _, st := newTestHub()
	c := connect(h, "alpha")
	require.NoError(t, h.subscribe(c, models.SubKindStrategy, models.StrategyVolumeWave))

	h.PublishSignalUpdate("add", st.signals[models.StrategyVolumeWave])

	var update models.WSSignalUpdate
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &update))
	assert.Equal(t, models.WSTypeSignalUpdate, update.Type)
	assert.Equal(t, "add", update.Action)
	assert.Equal(t, 2, update.Count)
}

func TestFullSendBufferClosesClient(t *testing.T) {
	h, _, _ := newTestHub()
	c := connect(h, "alpha")
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.enqueue([]byte("x")))
	}

	h.send(c, models.WSPong{Type: models.WSTypePong})

	assert.Zero(t, h.ClientCount())
}

func TestSweepClosesInactiveClients(t *testing.T) {
	h, _, _ := newTestHub()
	stale := connect(h, "stale")
	fresh := connect(h, "fresh")
	stale.touch(fixedClock().Add(-301 * time.Second))
	fresh.touch(fixedClock().Add(-10 * time.Second))

	h.sweepInactive()

	assert.Equal(t, 1, h.ClientCount())
	assert.Empty(t, h.subscriptionList("stale"))
	h.handleMessage(fresh, []byte(`{"type":"ping"}`))
	nextFrame(t, fresh)
}

func TestTestModeJitterIsBounded(t *testing.T) {
	h, _, _ := newTestHub(WithTestMode(true))
	for i := 0; i < 200; i++ {
		delta := h.jitter(100) - 100
		if delta < 0 {
			delta = -delta
		}
		assert.GreaterOrEqual(t, delta, 0.20)
		assert.LessOrEqual(t, delta, 0.69)
	}
}
