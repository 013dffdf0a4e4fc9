// Package parallel runs a serial connectivity across ranks: grid extents are
// all-gathered so every rank sees the full topology, and ghost data for
// neighbors on other ranks travels as wire messages.
package parallel

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/notargets/GhostGrid/comm"
	"github.com/notargets/GhostGrid/connectivity"
	"github.com/notargets/GhostGrid/logging"
	"github.com/notargets/GhostGrid/wire"
)

// ExchangeStats summarizes one ghost exchange on one rank
type ExchangeStats struct {
	MessagesSent     int
	MessagesReceived int
	BytesSent        int64
	BytesReceived    int64
	LocalTransfers   int
}

// Add accumulates o into s
func (s *ExchangeStats) Add(o ExchangeStats) {
	s.MessagesSent += o.MessagesSent
	s.MessagesReceived += o.MessagesReceived
	s.BytesSent += o.BytesSent
	s.BytesReceived += o.BytesReceived
	s.LocalTransfers += o.LocalTransfers
}

// levelRatios is implemented by halos whose levels carry refinement ratios
type levelRatios interface {
	LevelRatio(level int) (int, bool)
	SetLevelRatio(level, ratio int)
}

// Connectivity wraps a serial halo with the distributed registry and the
// exchange protocol. Local grids are registered on the halo directly.
type Connectivity struct {
	connectivity.Halo

	comm   comm.Communicator
	owner  []int // Rank owning each grid
	stats  ExchangeStats
	logger *log.Logger
}

// Option configures a distributed connectivity
type Option func(*Connectivity)

// WithLogger routes diagnostics to l, tagged with the rank
func WithLogger(l *log.Logger) Option {
	return func(c *Connectivity) { c.logger = l }
}

// New wraps halo for the rank behind cm
func New(halo connectivity.Halo, cm comm.Communicator, opts ...Option) *Connectivity {
	c := &Connectivity{
		Halo:   halo,
		comm:   cm,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.ForRank(c.logger, cm.Rank())
	return c
}

// Rank returns this process's rank
func (c *Connectivity) Rank() int { return c.comm.Rank() }

// Owner returns the rank holding grid id, valid after ComputeNeighbors
func (c *Connectivity) Owner(id int) int {
	if id < 0 || id >= len(c.owner) {
		panic(fmt.Sprintf("grid id %d out of range [0,%d)", id, len(c.owner)))
	}
	return c.owner[id]
}

// Stats returns the statistics of the last exchange
func (c *Connectivity) Stats() ExchangeStats { return c.stats }

// ComputeNeighbors runs ComputeNeighborsContext without cancellation
func (c *Connectivity) ComputeNeighbors() error {
	return c.ComputeNeighborsContext(context.Background())
}

// ComputeNeighborsContext all-gathers every rank's grid tuples, registers
// the grids owned elsewhere and computes the neighbor graph. Every rank must
// call it.
func (c *Connectivity) ComputeNeighborsContext(ctx context.Context) error {
	n := c.NumberOfGrids()
	ratios, _ := c.Halo.(levelRatios)

	var mine []wire.GridTuple
	for id := 0; id < n; id++ {
		if !c.IsLocal(id) {
			continue
		}
		t := wire.GridTuple{ID: int32(id), Level: int32(c.GridLevel(id)), Extent: c.GridExtent(id)}
		if ratios != nil {
			if r, ok := ratios.LevelRatio(c.GridLevel(id)); ok {
				t.Ratio = int32(r)
			}
		}
		mine = append(mine, t)
	}

	all, err := c.comm.AllGather(ctx, wire.EncodeGrids(mine))
	if err != nil {
		return fmt.Errorf("exchanging grid extents: %w", err)
	}

	c.owner = make([]int, n)
	for id := range c.owner {
		c.owner[id] = -1
	}
	var errs []error
	for rank, buf := range all {
		tuples, err := wire.DecodeGrids(buf)
		if err != nil {
			errs = append(errs, fmt.Errorf("grid tuples from rank %d: %w", rank, err))
			continue
		}
		for _, t := range tuples {
			id := int(t.ID)
			switch {
			case id < 0 || id >= n:
				errs = append(errs, fmt.Errorf("rank %d registered grid %d outside [0,%d)", rank, id, n))
				continue
			case c.owner[id] >= 0:
				errs = append(errs, fmt.Errorf("grid %d registered on ranks %d and %d", id, c.owner[id], rank))
				continue
			}
			c.owner[id] = rank
			if rank == c.Rank() {
				continue
			}
			c.RegisterRemote(id, int(t.Level), t.Extent)
			if ratios != nil && t.Ratio > 0 {
				ratios.SetLevelRatio(int(t.Level), int(t.Ratio))
			}
		}
	}
	for id, r := range c.owner {
		if r < 0 {
			errs = append(errs, fmt.Errorf("grid %d registered on no rank", id))
		}
	}

	// Every rank reaches the barrier, even with a bad registry
	if err := c.comm.Barrier(ctx); err != nil {
		return fmt.Errorf("registry barrier: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := c.Halo.ComputeNeighbors(); err != nil {
		return err
	}
	c.logger.Debug("computed distributed neighbors", "grids", n, "local", len(mine))
	return nil
}

// CreateGhostLayers runs CreateGhostLayersContext without cancellation
func (c *Connectivity) CreateGhostLayers(n int) error {
	_, err := c.CreateGhostLayersContext(context.Background(), n)
	return err
}

type outgoing struct {
	sender, receiver int
	buf              []byte
}

type incoming struct {
	sender, receiver int
	req              *comm.Request
}

// CreateGhostLayersContext adds n ghost layers to every local grid, fills
// them from local neighbors and exchanges ghost data with the other ranks.
// Every rank must call it with the same n.
func (c *Connectivity) CreateGhostLayersContext(ctx context.Context, n int) (ExchangeStats, error) {
	if n == 0 {
		c.logger.Warn("zero ghost layers requested, nothing to do")
		return ExchangeStats{}, nil
	}
	progress := logging.NewProgress(c.logger)

	var (
		errs  []error
		stats ExchangeStats
	)
	// Local failures still take part in the exchange so peers do not block
	if err := c.Halo.CreateGhostLayers(n); err != nil {
		errs = append(errs, err)
	}

	numGrids := c.NumberOfGrids()
	var out []outgoing
	var sizes []wire.SizeTriple
	for id := 0; id < numGrids; id++ {
		if !c.IsLocal(id) {
			continue
		}
		for _, nb := range c.Neighbors(id) {
			if c.IsLocal(nb.ID) {
				stats.LocalTransfers++
				continue
			}
			p, err := c.SendPatch(id, nb.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			buf := wire.Encode(wire.Message{
				Header:   wire.Header{Sender: int32(id), Receiver: int32(nb.ID), Extent: p.Extent},
				Points:   p.Points,
				NodeData: p.NodeData,
				CellData: p.CellData,
			})
			out = append(out, outgoing{sender: id, receiver: nb.ID, buf: buf})
			sizes = append(sizes, wire.SizeTriple{Sender: int32(id), Receiver: int32(nb.ID), Size: int64(len(buf))})
		}
	}

	all, err := c.comm.AllGather(ctx, wire.EncodeSizes(sizes))
	if err != nil {
		return stats, fmt.Errorf("exchanging message sizes: %w", err)
	}
	if err := c.comm.Barrier(ctx); err != nil {
		return stats, fmt.Errorf("size barrier: %w", err)
	}

	var in []incoming
	var reqs []*comm.Request
	for rank, buf := range all {
		triples, err := wire.DecodeSizes(buf)
		if err != nil {
			errs = append(errs, fmt.Errorf("size triples from rank %d: %w", rank, err))
			continue
		}
		for _, t := range triples {
			recv := int(t.Receiver)
			if recv < 0 || recv >= numGrids || !c.IsLocal(recv) {
				continue
			}
			send := int(t.Sender)
			r := c.comm.Irecv(ctx, c.owner[send], c.tag(send, recv), int(t.Size))
			in = append(in, incoming{sender: send, receiver: recv, req: r})
			reqs = append(reqs, r)
		}
	}
	for _, o := range out {
		reqs = append(reqs, c.comm.Isend(ctx, c.owner[o.receiver], c.tag(o.sender, o.receiver), o.buf))
		stats.MessagesSent++
		stats.BytesSent += int64(len(o.buf))
	}

	if err := c.comm.WaitAll(ctx, reqs...); err != nil {
		return stats, fmt.Errorf("ghost exchange: %w", err)
	}
	if err := c.comm.Barrier(ctx); err != nil {
		return stats, fmt.Errorf("exchange barrier: %w", err)
	}

	for _, m := range in {
		data := m.req.Data()
		stats.MessagesReceived++
		stats.BytesReceived += int64(len(data))
		if err := c.receive(m, data); err != nil {
			errs = append(errs, err)
		}
	}

	c.stats = stats
	progress.Done(fmt.Sprintf("exchanged %d/%d messages", stats.MessagesSent, stats.MessagesReceived))
	return stats, errors.Join(errs...)
}

// receive decodes one message into the ghost layer of its receiver
func (c *Connectivity) receive(m incoming, data []byte) error {
	msg, err := wire.Decode(data)
	if err != nil {
		return fmt.Errorf("message %d->%d: %w", m.sender, m.receiver, err)
	}
	if int(msg.Sender) != m.sender || int(msg.Receiver) != m.receiver {
		return fmt.Errorf("message %d->%d carries header %d->%d", m.sender, m.receiver, msg.Sender, msg.Receiver)
	}
	p := connectivity.Patch{
		Extent:     msg.Extent,
		CellExtent: connectivity.PatchCellExtent(msg.Extent, c.GridExtent(m.sender)),
		NodeData:   msg.NodeData,
		CellData:   msg.CellData,
		Points:     msg.Points,
	}
	return c.ReceivePatch(m.receiver, m.sender, p)
}

func (c *Connectivity) tag(sender, receiver int) int {
	return sender*c.NumberOfGrids() + receiver
}

var _ connectivity.GridConnectivity = (*Connectivity)(nil)
