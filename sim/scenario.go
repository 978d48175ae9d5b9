package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weftnet/weft/dv"
	"github.com/weftnet/weft/ls"
	"github.com/weftnet/weft/state"
)

// Report is the outcome of one protocol's rendition of a scenario.
type Report struct {
	Protocol        state.Protocol
	Now             time.Duration
	Tables          map[state.Addr]state.ForwardingTable
	Optimal         map[state.Addr]map[state.Addr]state.Cost
	ProbesSent      int
	ProbesDelivered int
}

func engineFactory(p state.Protocol) (NewEngineFunc, error) {
	switch p {
	case state.ProtocolDV:
		return func(addr state.Addr, hb time.Duration, send state.Sender, log *slog.Logger) state.Engine {
			return dv.New(addr, hb, send, log)
		}, nil
	case state.ProtocolLS:
		return func(addr state.Addr, hb time.Duration, send state.Sender, log *slog.Logger) state.Engine {
			return ls.New(addr, hb, send, log)
		}, nil
	}
	return nil, fmt.Errorf("unknown protocol %q", p)
}

// Build assembles a network for one protocol from a validated scenario:
// routers, initial links, and the timed event schedule.
func Build(cfg *state.ScenarioCfg, protocol state.Protocol, log *slog.Logger) (*Network, error) {
	newEngine, err := engineFactory(protocol)
	if err != nil {
		return nil, err
	}
	n := NewNetwork(Options{
		Heartbeat: cfg.Heartbeat(),
		Seed:      cfg.Seed,
		Log:       log.With("proto", protocol),
	})
	for _, node := range cfg.Nodes {
		if err := n.AddRouter(node, newEngine); err != nil {
			return nil, err
		}
	}
	for _, l := range cfg.Links {
		if err := n.Connect(l); err != nil {
			return nil, err
		}
	}
	for _, ev := range cfg.Events {
		n.At(ev.At(), func() {
			var err error
			switch ev.Action {
			case state.EventLinkUp:
				err = n.Connect(state.LinkCfg{A: ev.A, B: ev.B, Cost: ev.Cost})
			case state.EventLinkDown:
				err = n.Disconnect(ev.A, ev.B)
			case state.EventProbe:
				err = n.SendProbe(ev.A, ev.B)
			}
			if err != nil {
				n.log.Warn("scenario event failed", "action", ev.Action, "a", ev.A, "b", ev.B, "err", err)
			}
		})
	}
	return n, nil
}

// RunScenario runs every protocol the scenario names, concurrently, each in
// its own isolated network, and returns one report per protocol in the
// order configured.
func RunScenario(ctx context.Context, cfg *state.ScenarioCfg, log *slog.Logger) ([]Report, error) {
	reports := make([]Report, len(cfg.Protocols))
	g, ctx := errgroup.WithContext(ctx)
	for i, protocol := range cfg.Protocols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := Build(cfg, protocol, log)
			if err != nil {
				return err
			}
			n.Run(cfg.Duration())
			reports[i] = n.Report(protocol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Report snapshots the network's end state.
func (n *Network) Report(protocol state.Protocol) Report {
	tables := make(map[state.Addr]state.ForwardingTable, len(n.order))
	for _, addr := range n.order {
		tables[addr] = n.Table(addr)
	}
	sent, delivered := n.ProbeStats()
	return Report{
		Protocol:        protocol,
		Now:             n.now,
		Tables:          tables,
		Optimal:         n.OptimalCosts(),
		ProbesSent:      sent,
		ProbesDelivered: delivered,
	}
}
