// Package comm defines the message transport the ghost exchange runs over and
// an in-process implementation with one goroutine per rank.
package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Communicator is one rank's view of an SPMD process group. Collectives must
// be called by every rank in the same order.
type Communicator interface {
	Rank() int
	Size() int

	// AllGather returns every rank's buffer indexed by rank
	AllGather(ctx context.Context, buf []byte) ([][]byte, error)
	Barrier(ctx context.Context) error

	// Isend and Irecv start point-to-point transfers matched by (src, dest,
	// tag). Irecv expects exactly size bytes.
	Isend(ctx context.Context, dest, tag int, buf []byte) *Request
	Irecv(ctx context.Context, src, tag, size int) *Request
	WaitAll(ctx context.Context, reqs ...*Request) error
}

// Request tracks a non-blocking transfer
type Request struct {
	done chan struct{}
	data []byte
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) finish(data []byte, err error) {
	r.data, r.err = data, err
	close(r.done)
}

// Done is closed when the transfer completes
func (r *Request) Done() <-chan struct{} { return r.done }

// Data returns the received bytes once a receive has completed
func (r *Request) Data() []byte {
	<-r.done
	return r.data
}

// Err returns the transfer error once it has completed
func (r *Request) Err() error {
	<-r.done
	return r.err
}

type mailKey struct {
	src, dest, tag int
}

type round struct {
	bufs  [][]byte
	in    int
	out   int
	ready chan struct{}
}

// World is a group of in-process ranks connected by channels
type World struct {
	size int

	mu      sync.Mutex
	mail    map[mailKey]chan []byte
	rounds  map[int]*round
	counter []int // Collective sequence per rank
}

// NewWorld creates a group of size ranks
func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", size))
	}
	return &World{
		size:    size,
		mail:    make(map[mailKey]chan []byte),
		rounds:  make(map[int]*round),
		counter: make([]int, size),
	}
}

// Self returns a single-rank communicator
func Self() Communicator {
	return NewWorld(1).Comm(0)
}

// Size returns the number of ranks
func (w *World) Size() int { return w.size }

// Comm returns the communicator of rank
func (w *World) Comm(rank int) Communicator {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d out of range [0,%d)", rank, w.size))
	}
	return &local{world: w, rank: rank}
}

// Run executes fn once per rank concurrently. The first error cancels the
// context handed to the other ranks.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		c := w.Comm(r)
		g.Go(func() error {
			if err := fn(ctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *World) mailbox(k mailKey) chan []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.mail[k]
	if !ok {
		ch = make(chan []byte, 16)
		w.mail[k] = ch
	}
	return ch
}

// join deposits buf into rank's next collective round
func (w *World) join(rank int, buf []byte) (int, *round) {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.counter[rank]
	w.counter[rank]++
	r, ok := w.rounds[seq]
	if !ok {
		r = &round{bufs: make([][]byte, w.size), ready: make(chan struct{})}
		w.rounds[seq] = r
	}
	r.bufs[rank] = append([]byte(nil), buf...)
	r.in++
	if r.in == w.size {
		close(r.ready)
	}
	return seq, r
}

// leave releases a round once every rank has read or abandoned it
func (w *World) leave(seq int, r *round) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r.out++
	if r.out == w.size {
		delete(w.rounds, seq)
	}
}

// local is the Communicator of one in-process rank
type local struct {
	world *World
	rank  int
}

func (c *local) Rank() int { return c.rank }
func (c *local) Size() int { return c.world.size }

func (c *local) AllGather(ctx context.Context, buf []byte) ([][]byte, error) {
	seq, r := c.world.join(c.rank, buf)
	select {
	case <-r.ready:
	case <-ctx.Done():
		c.world.leave(seq, r)
		return nil, fmt.Errorf("all-gather %d: %w", seq, ctx.Err())
	}
	out := make([][]byte, len(r.bufs))
	copy(out, r.bufs)
	c.world.leave(seq, r)
	return out, nil
}

func (c *local) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

func (c *local) Isend(ctx context.Context, dest, tag int, buf []byte) *Request {
	req := newRequest()
	if err := c.checkRank(dest); err != nil {
		req.finish(nil, err)
		return req
	}
	ch := c.world.mailbox(mailKey{src: c.rank, dest: dest, tag: tag})
	msg := append([]byte(nil), buf...)
	go func() {
		select {
		case ch <- msg:
			req.finish(nil, nil)
		case <-ctx.Done():
			req.finish(nil, fmt.Errorf("send to %d tag %d: %w", dest, tag, ctx.Err()))
		}
	}()
	return req
}

func (c *local) Irecv(ctx context.Context, src, tag, size int) *Request {
	req := newRequest()
	if err := c.checkRank(src); err != nil {
		req.finish(nil, err)
		return req
	}
	ch := c.world.mailbox(mailKey{src: src, dest: c.rank, tag: tag})
	go func() {
		select {
		case msg := <-ch:
			if len(msg) != size {
				req.finish(nil, fmt.Errorf("receive from %d tag %d: got %d bytes, expected %d", src, tag, len(msg), size))
				return
			}
			req.finish(msg, nil)
		case <-ctx.Done():
			req.finish(nil, fmt.Errorf("receive from %d tag %d: %w", src, tag, ctx.Err()))
		}
	}()
	return req
}

func (c *local) WaitAll(ctx context.Context, reqs ...*Request) error {
	var errs []error
	for _, r := range reqs {
		select {
		case <-r.done:
			if r.err != nil {
				errs = append(errs, r.err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d transfers failed: %w", len(errs), len(reqs), errs[0])
	}
	return nil
}

func (c *local) checkRank(r int) error {
	if r < 0 || r >= c.world.size {
		return fmt.Errorf("rank %d out of range [0,%d)", r, c.world.size)
	}
	return nil
}
