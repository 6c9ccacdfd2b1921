// Package pool supervises a bounded set of reusable embedded-engine
// connections over one shared engine handle. Connections are created lazily
// on first demand, handed out exclusively via checkout/checkin, and torn
// down in reverse dependency order so the handle is released exactly once,
// strictly after every connection is gone.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	sqlkit "github.com/tylerbarker/sql-kit"
	"github.com/tylerbarker/sql-kit/duck"
)

// DefaultSize is the connection count when Config.Size is zero.
const DefaultSize = 4

// DefaultCheckoutTimeout bounds checkout waits when Config.CheckoutTimeout
// is zero.
const DefaultCheckoutTimeout = 5 * time.Second

// Config configures Start.
type Config struct {
	// Name identifies the pool in errors and logs.
	Name string
	// Location is the database to open: a filesystem path or ":memory:".
	Location string
	// Size is the bounded connection count (default 4).
	Size int
	// CheckoutTimeout bounds checkout waits (default 5s); override per
	// call with sqlkit.WithTimeout.
	CheckoutTimeout time.Duration
	// Setup statements run on every newly created connection before it
	// enters service (session pragmas, extension loads).
	Setup []string
	// Logger receives slot lifecycle events at debug and teardown at
	// info. Nil means discard.
	Logger *slog.Logger
	// OnRelease is forwarded to the engine handle's release hook.
	OnRelease func()
}

// Pool is a running supervisor in its ConnectionsReady stage: the engine
// handle is held and Size slots are armed. Construct one with Start and
// pass it explicitly to every caller that queries it; there is no global
// registry.
type Pool struct {
	name    string
	timeout time.Duration
	setup   []string
	logger  *slog.Logger

	handle *duck.Handle

	// slots holds one token per pool slot. A nil token is an empty slot
	// whose connection is created lazily by the checking-out caller.
	slots chan *duck.Conn
	size  int

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	created  atomic.Int64
	checkins atomic.Int64
	timeouts atomic.Int64
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Size      int
	Idle      int
	InUse     int
	Created   int64
	Checkouts int64
	Timeouts  int64
}

// Start opens the engine handle (stage 1) and arms Size empty slots
// (stage 2). No connections are created here: each slot connects lazily on
// first checkout, so startup never blocks on Size native connects and one
// slow connect never stalls the others. A handle-open failure aborts Start
// with *sqlkit.OpenError and leaves nothing to unwind.
func Start(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Location
	}

	handle, err := duck.Open(ctx, cfg.Location,
		duck.WithMaxSessions(cfg.Size),
		duck.WithReleaseHook(cfg.OnRelease),
		duck.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		name:    cfg.Name,
		timeout: cfg.CheckoutTimeout,
		setup:   cfg.Setup,
		logger:  cfg.Logger,
		handle:  handle,
		slots:   make(chan *duck.Conn, cfg.Size),
		size:    cfg.Size,
		closed:  make(chan struct{}),
	}
	for i := 0; i < cfg.Size; i++ {
		p.slots <- nil
	}

	cfg.Logger.Debug("pool started", "pool", cfg.Name, "size", cfg.Size)
	return p, nil
}

// Name returns the pool's identity used in errors and logs.
func (p *Pool) Name() string { return p.name }

// checkout claims one slot, creating its connection if the slot is empty.
// The wait is bounded by timeout (zero means the pool default); exceeding
// it fails with *sqlkit.CheckoutTimeoutError without consuming or harming
// any slot.
func (p *Pool) checkout(ctx context.Context, timeout time.Duration) (*duck.Conn, error) {
	if timeout <= 0 {
		timeout = p.timeout
	}

	select {
	case <-p.closed:
		return nil, &sqlkit.PoolClosedError{Pool: p.name}
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-p.slots:
		if conn == nil {
			created, err := p.connect(ctx)
			if err != nil {
				// Hand the empty slot back so the pool keeps its
				// full complement.
				p.slots <- nil
				return nil, err
			}
			conn = created
		}
		p.checkins.Add(1)
		return conn, nil
	case <-p.closed:
		return nil, &sqlkit.PoolClosedError{Pool: p.name}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.timeouts.Add(1)
		return nil, &sqlkit.CheckoutTimeoutError{Pool: p.name, Timeout: timeout}
	}
}

// checkin returns a claimed slot. Discard closes the connection and leaves
// the slot empty for lazy recreation on next demand.
func (p *Pool) checkin(conn *duck.Conn, verdict Verdict) {
	if verdict == Discard {
		_ = conn.Close()
		p.logger.Debug("connection discarded", "pool", p.name)
		p.slots <- nil
		return
	}
	p.slots <- conn
}

// connect creates one connection and runs the pool's setup statements on it
// before it enters service.
func (p *Pool) connect(ctx context.Context) (*duck.Conn, error) {
	conn, err := p.handle.Connect(ctx)
	if err != nil {
		return nil, err
	}
	for _, stmt := range p.setup {
		if err := conn.Exec(ctx, stmt, nil); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	p.created.Add(1)
	p.logger.Debug("connection created", "pool", p.name)
	return conn, nil
}

// Close tears the pool down in reverse dependency order: stage 2 first
// (reject new checkouts, wait for every in-flight checkout to check in, and
// close every connection), then stage 1, releasing the engine handle
// exactly once. Connections can therefore never outlive their backing
// handle. Idempotent; concurrent Close calls coalesce on the first result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)

		// Draining all Size tokens blocks until every checked-out
		// connection has been checked back in.
		conns := make([]*duck.Conn, 0, p.size)
		for i := 0; i < p.size; i++ {
			if conn := <-p.slots; conn != nil {
				conns = append(conns, conn)
			}
		}

		var g errgroup.Group
		for _, conn := range conns {
			g.Go(conn.Close)
		}
		p.closeErr = g.Wait()

		if err := p.handle.Release(); err != nil && p.closeErr == nil {
			p.closeErr = err
		}
		p.logger.Info("pool closed", "pool", p.name, "connections", len(conns))
	})
	return p.closeErr
}

// Releases reports how many times the engine handle was released: 0 before
// Close, 1 after. Exists for lifecycle tests.
func (p *Pool) Releases() int {
	return p.handle.Releases()
}

// Stats snapshots pool activity. Idle counts both live idle connections and
// empty (never-connected or discarded) slots.
func (p *Pool) Stats() Stats {
	idle := len(p.slots)
	return Stats{
		Size:      p.size,
		Idle:      idle,
		InUse:     p.size - idle,
		Created:   p.created.Load(),
		Checkouts: p.checkins.Load(),
		Timeouts:  p.timeouts.Load(),
	}
}
