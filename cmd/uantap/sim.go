package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"uantap/pkg/bridge"
	"uantap/pkg/config"
	"uantap/pkg/ether"
	"uantap/pkg/log"
	"uantap/pkg/medium"
	"uantap/pkg/uanaddr"
)

var simCommand = &cli.Command{
	Name:  "sim",
	Usage: "run ghost nodes over an in-memory UAN channel and print their translation tables",
	Description: `Every node sends one broadcast frame from its own host; every other node
answers it with a unicast frame addressed to the sender as it saw it.`,
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "nodes", Aliases: []string{"n"}, Value: 2, Usage: "number of nodes"},
		&cli.IntFlag{Name: "rate", Usage: "channel data rate in bits per second, 0 is unlimited"},
		&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "give up after `DURATION`"},
		&cli.BoolFlag{Name: "json", Usage: "print the tables as JSON"},
	},
	Action: simCmd,
}

// ghostTap stands in for a TAP device: frames pushed to rx are read by the
// bridge, frames the bridge writes arrive on tx.
type ghostTap struct {
	rx     chan []byte
	tx     chan []byte
	closed chan struct{}
}

func newGhostTap() *ghostTap {
	return &ghostTap{
		rx:     make(chan []byte, 16),
		tx:     make(chan []byte, 512),
		closed: make(chan struct{}),
	}
}

func (g *ghostTap) Read(p []byte) (int, error) {
	select {
	case f := <-g.rx:
		return copy(p, f), nil
	case <-g.closed:
		return 0, io.EOF
	}
}

func (g *ghostTap) Write(p []byte) (int, error) {
	select {
	case g.tx <- append([]byte(nil), p...):
		return len(p), nil
	case <-g.closed:
		return 0, io.ErrClosedPipe
	}
}

func (g *ghostTap) Close() error {
	select {
	case <-g.closed:
	default:
		close(g.closed)
	}
	return nil
}

// every node overhears every reply, which must fit in a ghost tap's buffer
const maxSimNodes = 16

type simNode struct {
	host   uanaddr.Long
	tap    *ghostTap
	bridge *bridge.Bridge
}

func hostAddr(i int) uanaddr.Long {
	return uanaddr.Long{0x02, 0x55, 0x41, 0x4e, byte(i >> 8), byte(i)}
}

func simCmd(c *cli.Context) error {
	n := c.Int("nodes")
	if n < 2 || n > maxSimNodes {
		return cli.Exit(fmt.Sprintf("Error: --nodes must be between 2 and %d", maxSimNodes), 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error initializing logger: %v", err), 1)
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	nodes, err := runSim(ctx, cfg, n)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	return printTables(os.Stdout, nodes, c.Bool("json"))
}

// nodeConfig gives node i of n its own slice of the configured short range.
// Translators on different nodes allocate independently, so overlapping
// ranges would let two hosts claim the same short address on the air.
func nodeConfig(cfg *config.Config, i, n int) (*config.Config, error) {
	span := (cfg.ShortLast - cfg.ShortFirst + 1) / n
	if span < 1 {
		return nil, fmt.Errorf("short range %d..%d too small for %d nodes", cfg.ShortFirst, cfg.ShortLast, n)
	}
	c := *cfg
	c.ShortFirst = cfg.ShortFirst + i*span
	c.ShortLast = c.ShortFirst + span - 1
	return &c, nil
}

// runSim wires n bridges to one channel, exchanges the frames and returns
// once every expected frame was delivered.
func runSim(ctx context.Context, cfg *config.Config, n int) ([]*simNode, error) {
	channel := medium.NewChannel(4 * n)
	nodes := make([]*simNode, n)
	for i := range nodes {
		nc, err := nodeConfig(cfg, i, n)
		if err != nil {
			return nil, err
		}
		b, err := nc.NewBridge(fmt.Sprintf("node%d", i+1))
		if err != nil {
			return nil, err
		}
		host := hostAddr(i + 1)
		if _, err := b.BindLocal(host); err != nil {
			return nil, err
		}
		nodes[i] = &simNode{host: host, tap: newGhostTap(), bridge: b}
	}

	runCtx, stopBridges := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)
	for _, node := range nodes {
		link := medium.Throttle(channel.Attach(), cfg.DataRate)
		g.Go(func() error { return node.bridge.Run(runCtx, node.tap, link) })
	}

	exchange := func() error {
		defer stopBridges()
		for _, sender := range nodes {
			hello := ether.Frame{Dst: uanaddr.BroadcastLong, Src: sender.host, Ethertype: ether.EthertypeARP, Payload: []byte("hello")}
			sender.tap.rx <- hello.Marshal()

			for _, peer := range nodes {
				if peer == sender {
					continue
				}
				got, err := await(runCtx, peer.tap, func(f ether.Frame) bool {
					return f.Dst.IsBroadcast() && string(f.Payload) == "hello"
				})
				if err != nil {
					return fmt.Errorf("%s waiting for hello: %w", peer.bridge.Name(), err)
				}
				reply := ether.Frame{Dst: got.Src, Src: peer.host, Ethertype: ether.EthertypeARP, Payload: []byte("reply")}
				peer.tap.rx <- reply.Marshal()
				_, err = await(runCtx, sender.tap, func(f ether.Frame) bool {
					return f.Dst == sender.host && string(f.Payload) == "reply"
				})
				if err != nil {
					return fmt.Errorf("%s waiting for reply: %w", sender.bridge.Name(), err)
				}
			}
		}
		return nil
	}
	if err := exchange(); err != nil {
		g.Wait()
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info().Int("nodes", n).Uint64("dropped", channel.Dropped()).Msg("sim: exchange complete")
	return nodes, nil
}

// await returns the next frame delivered to tap that satisfies match. Frames
// overheard on the shared channel are skipped.
func await(ctx context.Context, tap *ghostTap, match func(ether.Frame) bool) (ether.Frame, error) {
	for {
		select {
		case raw := <-tap.tx:
			f, err := ether.Parse(raw)
			if err != nil {
				return ether.Frame{}, err
			}
			if match(f) {
				return f, nil
			}
		case <-ctx.Done():
			return ether.Frame{}, ctx.Err()
		}
	}
}

type simTable struct {
	Node string             `json:"node"`
	Host uanaddr.Long       `json:"host"`
	Rows []bridge.Neighbour `json:"translations"`
}

func printTables(w io.Writer, nodes []*simNode, asJSON bool) error {
	tables := make([]simTable, 0, len(nodes))
	for _, node := range nodes {
		tables = append(tables, simTable{Node: node.bridge.Name(), Host: node.host, Rows: node.bridge.Neighbours()})
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tables)
	}
	for _, t := range tables {
		fmt.Fprintf(w, "%s (host %s)\n", t.Node, t.Host)
		for _, row := range t.Rows {
			marker := ""
			if row.Long == t.Host {
				marker = " local"
			}
			fmt.Fprintf(w, "  %3d  %s%s\n", row.Short, row.Long, marker)
		}
	}
	return nil
}
