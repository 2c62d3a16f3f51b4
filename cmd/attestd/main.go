// attestd runs a node of the deferred verification pipeline.
//
//	go run ./cmd/attestd -validator -author -keys keys.json
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/attestd/internal/api"
	"github.com/eigerco/attestd/internal/config"
	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/internal/keystore"
	"github.com/eigerco/attestd/internal/metrics"
	"github.com/eigerco/attestd/internal/node"
	"github.com/eigerco/attestd/internal/oracle"
	"github.com/eigerco/attestd/internal/ratelimit"
	"github.com/eigerco/attestd/pkg/db"
	"github.com/eigerco/attestd/pkg/db/pebble"
	"github.com/eigerco/attestd/pkg/log"
	"github.com/eigerco/attestd/pkg/network"
	"github.com/eigerco/attestd/pkg/network/cert"
	"github.com/eigerco/attestd/pkg/network/protocol"
	"github.com/eigerco/attestd/pkg/network/transport"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	parseFlags(&cfg)

	if err := run(cfg); err != nil {
		log.Root.Error().Err(err).Msg("node stopped")
		os.Exit(1)
	}
}

func parseFlags(cfg *config.Config) {
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "database directory, in-memory when empty")
	flag.StringVar(&cfg.P2PAddr, "p2p-addr", cfg.P2PAddr, "QUIC listen address")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP API listen address")
	flag.StringVar(&cfg.ChainHash, "chain", cfg.ChainHash, "8 hex digit chain identifier")
	flag.StringVar(&cfg.OracleURL, "oracle", cfg.OracleURL, "oracle endpoint")
	flag.StringVar(&cfg.KeyFile, "keys", cfg.KeyFile, "key file, generated when missing")
	flag.BoolVar(&cfg.Validator, "validator", cfg.Validator, "run the verification worker")
	flag.BoolVar(&cfg.Author, "author", cfg.Author, "produce blocks locally")
	flag.DurationVar(&cfg.BlockTime, "block-time", cfg.BlockTime, "block interval when authoring")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn or error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	flag.Func("peer", "peer address to dial, repeatable", func(s string) error {
		cfg.Peers = append(cfg.Peers, s)
		return nil
	})
	flag.Parse()
}

func run(cfg config.Config) error {
	level, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := log.ParseLoggerType(cfg.LogFormat)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close() //nolint:errcheck

	keys, err := loadKeys(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ncfg := node.DefaultConfig()
	ncfg.Validator = cfg.Validator
	ncfg.Author = cfg.Author
	ncfg.BlockTime = cfg.BlockTime
	n, err := node.New(ncfg, kv, oracle.NewHTTPClient(cfg.OracleURL), keys, metrics.New(reg))
	if err != nil {
		return err
	}

	tr, gossip, err := newNetwork(cfg, keys, n)
	if err != nil {
		return err
	}
	if err := tr.Start(); err != nil {
		return err
	}
	defer tr.Stop() //nolint:errcheck
	n.SetBroadcaster(gossip)
	log.Network.Info().Stringer("addr", tr.Addr()).Int("peers", gossip.ConnectPeers(ctx, cfg.Peers)).Msg("network started")

	limiter, err := newLimiter(cfg)
	if err != nil {
		return err
	}
	srv := api.NewServer(api.Config{
		AdminKey:            cfg.AdminKey,
		RateLimitRequests:   cfg.RateLimitRequests,
		RateLimitWindow:     cfg.RateLimitWindow,
		RateLimitFailClosed: cfg.RateLimitFailClosed,
	}, api.ServerDeps{Node: n, Limiter: limiter, Gatherer: reg})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.HTTPAddr) })
	return g.Wait()
}

func openStore(dir string) (db.KVStore, error) {
	if dir == "" {
		log.Root.Warn().Msg("no data dir, ledger state is kept in memory")
		return pebble.NewKVStore()
	}
	return pebble.NewKVStoreAt(dir)
}

func loadKeys(file string) (*keystore.KeyStore, error) {
	if file != "" {
		ks, err := keystore.Load(file)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return ks, err
		}
	}
	infos, err := keystore.Generate(1)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := keystore.Save(file, infos); err != nil {
			return nil, err
		}
		log.Root.Info().Str("file", file).Msg("generated key file")
	}
	return keystore.FromInfos(infos)
}

func newNetwork(cfg config.Config, keys *keystore.KeyStore, n *node.Node) (*transport.Transport, *network.Gossip, error) {
	var prv ed25519.PrivateKey
	if key, ok := keys.Any(); ok {
		prv = key.Private
	} else {
		var err error
		if _, prv, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, nil, err
		}
	}
	tlsCert, err := cert.Generate(prv, cert.DefaultValidity)
	if err != nil {
		return nil, nil, fmt.Errorf("generate certificate: %w", err)
	}

	registry := protocol.NewRegistry()
	tr, err := transport.NewTransport(transport.Config{
		PrivateKey: prv,
		TLSCert:    tlsCert,
		ListenAddr: cfg.P2PAddr,
		ChainHash:  cfg.ChainHash,
		Registry:   registry,
	})
	if err != nil {
		return nil, nil, err
	}
	return tr, network.NewGossip(tr, registry, protocol.StreamKindCandidateResult, n.HandlePeerCandidate), nil
}

func newLimiter(cfg config.Config) (ratelimit.Limiter, error) {
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return ratelimit.NewMemory(ratelimit.MemoryConfig{}), nil
}
