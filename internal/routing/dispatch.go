package routing

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// work is one unit of inbound work: a message or a call.
type work struct {
	msg  *domain.Message
	call *domain.CallRecord
}

func (w work) key() string {
	if w.call != nil {
		return w.call.Sid
	}
	return w.msg.Key()
}

// shardFor maps a key onto one of n workers.
func shardFor(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// dispatcher fans bounded per-adapter queues into a single loop that shards
// work by conversation onto sequential workers. Work for one conversation is
// therefore handled by one goroutine, in enqueue order.
type dispatcher struct {
	size    int
	workers int
	handle  func(context.Context, work)
	log     *logging.Logger

	mu      sync.Mutex
	queues  map[domain.Channel]chan work
	quit    chan struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDispatcher(cfg config.RouterConfig, handle func(context.Context, work), log *logging.Logger) *dispatcher {
	size, workers := cfg.QueueSize, cfg.Workers
	if size <= 0 {
		size = config.DefaultQueueSize
	}
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	return &dispatcher{
		size:    size,
		workers: workers,
		handle:  handle,
		log:     log,
		queues:  make(map[domain.Channel]chan work),
		quit:    make(chan struct{}),
	}
}

// queue returns the inbound queue for ch, creating it on first use. Queues
// must exist before start to be drained.
func (d *dispatcher) queue(ch domain.Channel) chan work {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[ch]
	if !ok {
		q = make(chan work, d.size)
		d.queues[ch] = q
	}
	return q
}

// enqueue blocks while q is full and gives up once the dispatcher stops.
func (d *dispatcher) enqueue(q chan work, w work) {
	d.mu.Lock()
	quit := d.quit
	d.mu.Unlock()

	select {
	case <-quit:
		d.log.Warn().Str("key", w.key()).Msg("router stopped, dropping inbound work")
		return
	default:
	}
	select {
	case q <- w:
	case <-quit:
		d.log.Warn().Str("key", w.key()).Msg("router stopped, dropping inbound work")
	}
}

func (d *dispatcher) start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("router already running")
	}
	select {
	case <-d.quit:
		d.quit = make(chan struct{})
	default:
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	quit := d.quit
	inbox := make(chan work)

	var fwd sync.WaitGroup
	for _, q := range d.queues {
		fwd.Add(1)
		go func() {
			defer fwd.Done()
			forward(q, inbox, quit)
		}()
	}
	go func() {
		fwd.Wait()
		close(inbox)
	}()

	shards := make([]chan work, d.workers)
	var wk sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan work, d.size)
		wk.Add(1)
		go func(in <-chan work) {
			defer wk.Done()
			for w := range in {
				d.handle(runCtx, w)
			}
		}(shards[i])
	}

	go func() {
		for w := range inbox {
			shards[shardFor(w.key(), len(shards))] <- w
		}
		for _, s := range shards {
			close(s)
		}
	}()

	done := make(chan struct{})
	go func() {
		wk.Wait()
		close(done)
	}()

	d.running = true
	d.cancel = cancel
	d.done = done
	d.log.Debug().Int("queues", len(d.queues)).Int("workers", d.workers).Msg("dispatcher started")
	return nil
}

// forward moves work from an adapter queue into the dispatcher. After quit
// it drains what is already queued and returns.
func forward(q <-chan work, inbox chan<- work, quit <-chan struct{}) {
	for {
		select {
		case w := <-q:
			inbox <- w
		case <-quit:
			for {
				select {
				case w := <-q:
					inbox <- w
				default:
					return
				}
			}
		}
	}
}

// stop drains queued work and waits for the workers, or cancels in-flight
// work once ctx is done.
func (d *dispatcher) stop(ctx context.Context) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.quit)
	d.running = false
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn().Msg("router stop timed out, cancelling in-flight work")
		cancel()
		<-done
	}
	cancel()
	d.log.Debug().Msg("dispatcher stopped")
}
