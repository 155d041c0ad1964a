package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"uantap/internal/fn"
	"uantap/pkg/api"
	"uantap/pkg/appdir"
	"uantap/pkg/config"
	"uantap/pkg/log"
	"uantap/pkg/medium"
	"uantap/pkg/tuntap"
	"uantap/pkg/uanaddr"
)

var upCommand = &cli.Command{
	Name:  "up",
	Usage: "create the TAP device and bridge it onto the UDP medium",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "node name (defaults to the hostname)"},
		&cli.StringFlag{Name: "tap", Usage: "TAP interface `NAME`"},
		&cli.StringFlag{Name: "mac", Usage: "MAC address for the TAP interface"},
		&cli.StringFlag{Name: "cidr", Usage: "IP address in CIDR form for the TAP interface"},
		&cli.StringFlag{Name: "listen", Usage: "UDP listen `ADDRESS` for the medium"},
		&cli.StringSliceFlag{Name: "peer", Usage: "UDP `ADDRESS` of another node (repeatable)"},
		&cli.IntFlag{Name: "rate", Usage: "channel data rate in bits per second, 0 is unlimited"},
		&cli.StringFlag{Name: "reverse-policy", Usage: "what to do with unseen short addresses: allocate or strict"},
		&cli.StringFlag{Name: "api-listen", Usage: "HTTP API listen `ADDRESS`, empty disables it"},
		&cli.BoolFlag{Name: "compress", Usage: "zstd-compress payloads"},
	},
	Action: upCmd,
}

// loadConfig reads the configuration file and applies command-line
// overrides on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("name") {
		cfg.NodeName = c.String("name")
	}
	if c.IsSet("tap") {
		cfg.TapName = c.String("tap")
	}
	if c.IsSet("mac") {
		cfg.TapMAC = c.String("mac")
	}
	if c.IsSet("cidr") {
		cfg.TapCIDR = c.String("cidr")
	}
	if c.IsSet("listen") {
		cfg.ListenAddr = c.String("listen")
	}
	if c.IsSet("peer") {
		cfg.Peers = c.StringSlice("peer")
	}
	if c.IsSet("rate") {
		cfg.DataRate = c.Int("rate")
	}
	if c.IsSet("reverse-policy") {
		cfg.ReversePolicy = c.String("reverse-policy")
	}
	if c.IsSet("api-listen") {
		cfg.APIListenAddr = c.String("api-listen")
	}
	if c.IsSet("compress") {
		cfg.CompressPayload = c.Bool("compress")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) (func(), error) {
	log.SetDebug(cfg.Debug)
	if cfg.LogDB == "" {
		log.SetStd()
		return func() {}, nil
	}
	// relative names land in the per-user state directory
	path, err := appdir.Path(cfg.LogDB)
	if err != nil {
		return nil, err
	}
	if err := log.Init(path); err != nil {
		return nil, err
	}
	return func() { log.Close() }, nil
}

func upCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error initializing logger: %v", err), 1)
	}
	defer closeLog()

	hostname, _ := os.Hostname()
	name := fn.Coalesce(cfg.NodeName, hostname, cfg.TapName)

	b, err := cfg.NewBridge(name)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	tap, err := tuntap.Create(tuntap.DefaultConfig(cfg.TapName))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error creating TAP device: %v", err), 1)
	}
	if err := tap.Configure(tuntap.LinkConfig{MAC: cfg.TapMAC, CIDR: cfg.TapCIDR, MTU: cfg.TapMTU}); err != nil {
		tap.Close()
		return cli.Exit(fmt.Sprintf("Error configuring TAP device: %v", err), 1)
	}

	// bind the local station first so it keeps the lowest short address
	if hw, err := tap.HardwareAddr(); err == nil {
		if local, err := uanaddr.LongFromHardwareAddr(hw); err == nil {
			short, err := b.BindLocal(local)
			if err != nil {
				tap.Close()
				return cli.Exit(fmt.Sprintf("Error binding local station: %v", err), 1)
			}
			log.Info().Str("mac", local.String()).Uint8("short", uint8(short)).Msg("uantap: local station bound")
		}
	}

	udp, err := medium.NewUDPLink(cfg.ListenAddr, cfg.Peers)
	if err != nil {
		tap.Close()
		return cli.Exit(fmt.Sprintf("Error opening medium: %v", err), 1)
	}
	link := medium.Throttle(udp, cfg.DataRate)

	log.Info().Str("node", name).Str("tap", tap.Name()).Str("listen", udp.LocalAddr().String()).
		Strs("peers", cfg.Peers).Str("policy", cfg.ReversePolicy).
		Str("rate", fn.T(cfg.DataRate > 0, fmt.Sprintf("%dbps", cfg.DataRate), "unlimited")).
		Msg("uantap: node is running, press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx, tap, link) })
	if cfg.APIListenAddr != "" {
		bapi := api.NewBridgeApi(b)
		g.Go(func() error { return bapi.Run(ctx, cfg.APIListenAddr) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	log.Info().Str("node", name).Msg("uantap: node has been shut down")
	return nil
}
