package plugin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
)

type testPlugin struct {
	name       string
	added      int32
	dead       int32
	initErr    error
	initCalled int32
}

func (p *testPlugin) Name() string { return p.name }

func (p *testPlugin) OnInit(ctx context.Context, core interface{}) error {
	atomic.AddInt32(&p.initCalled, 1)
	return p.initErr
}

func (p *testPlugin) OnCreditsAdded(ctx context.Context, accountKey string, amount, newTotal decimal.Decimal, reason credit.Reason) error {
	atomic.AddInt32(&p.added, 1)
	return nil
}

func (p *testPlugin) OnEntryDead(ctx context.Context, e *dlq.Entry) error {
	atomic.AddInt32(&p.dead, 1)
	return nil
}

// slowPlugin blocks until released to exercise the dispatch timeout path.
type slowPlugin struct {
	unblock chan struct{}
}

func (p *slowPlugin) Name() string { return "slow" }

func (p *slowPlugin) OnIdempotencyHit(ctx context.Context, key string) error {
	<-p.unblock
	return nil
}

func TestRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	p := &testPlugin{name: "test"}
	require.NoError(t, r.Register(p))

	ctx := context.Background()
	r.EmitInit(ctx, nil)
	r.EmitCreditsAdded(ctx, "acct_1", decimal.NewFromInt(10), decimal.NewFromInt(10), credit.ReasonPurchase)
	r.EmitCreditsAdded(ctx, "acct_1", decimal.NewFromInt(5), decimal.NewFromInt(15), credit.ReasonPromotion)
	r.EmitEntryDead(ctx, &dlq.Entry{ID: "dlq_x"})

	assert.EqualValues(t, 1, atomic.LoadInt32(&p.initCalled))
	assert.EqualValues(t, 2, atomic.LoadInt32(&p.added))
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.dead))
}

func TestRegisterDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&testPlugin{name: "dup"}))

	err := r.Register(&testPlugin{name: "dup"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate registration")
}

func TestDispatchSkipsUnimplementedHooks(t *testing.T) {
	r := NewRegistry()
	p := &testPlugin{name: "partial"}
	require.NoError(t, r.Register(p))

	// testPlugin does not implement OnEntryReplayed; this must be a no-op.
	r.EmitEntryReplayed(context.Background(), &dlq.Entry{ID: "dlq_y"})

	assert.Equal(t, 1, r.Count())
}

func TestEmitContinuesAfterPluginError(t *testing.T) {
	r := NewRegistry()
	failing := &testPlugin{name: "failing", initErr: errors.New("boom")}
	healthy := &testPlugin{name: "healthy"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(healthy))

	r.EmitInit(context.Background(), nil)

	assert.EqualValues(t, 1, atomic.LoadInt32(&failing.initCalled))
	assert.EqualValues(t, 1, atomic.LoadInt32(&healthy.initCalled))
}

func TestDispatchHonorsContextCancellation(t *testing.T) {
	r := NewRegistry()
	slow := &slowPlugin{unblock: make(chan struct{})}
	require.NoError(t, r.Register(slow))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.EmitIdempotencyHit(ctx, "op-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return after context cancellation")
	}
	close(slow.unblock)
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry()
	p := &testPlugin{name: "lookup"}
	require.NoError(t, r.Register(p))

	assert.Equal(t, p, r.Get("lookup"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 1)
}
