package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-redis/redis/v9"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/config"
	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
	logger "github.com/reputation-systems/forum-application/logger"
	"github.com/reputation-systems/forum-application/services/discussion"
	"github.com/reputation-systems/forum-application/services/submit"
	"github.com/reputation-systems/forum-application/state"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       config.Forum
	explorer  *erg.Explorer
	node      *erg.ErgNode
	submitter *submit.NodeSubmitter
	rdb       *redis.Client
	nc        *nats.Conn
	svc       *discussion.Service
	wg        sync.WaitGroup
}

// setup initialises logging for svc, loads the config and wires the forum
// service. Failures exit the process.
func setup(svc string) *app {
	logger.Initialize(svc)
	log = zap.L()

	config.SetDefaults()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	a := &app{cfg: cfg}

	retryClient := erg.NewRetryClient(cfg.Explorer.RetryMax, cfg.Explorer.Timeout)

	a.explorer, err = erg.NewExplorer(retryClient, cfg.Explorer.URI)
	if err != nil {
		log.Error("failed to create explorer client", zap.Error(err))
		os.Exit(1)
	}

	a.node, err = erg.NewErgNode(retryClient, cfg.Node.ErgNode())
	if err != nil {
		log.Error("failed to create ergo node client", zap.Error(err))
		os.Exit(1)
	}
	if cfg.Node.ApiKey == "" {
		log.Warn("ergo_node.api_key is not set, write operations will fail")
	}

	a.submitter = submit.NewNodeSubmitter(a.node, cfg.ContractAddress)

	var wallet forum.Wallet = a.submitter
	if cfg.WalletAddress != "" {
		wallet = submit.StaticWallet(cfg.WalletAddress)
	}

	// Connect to the redis db
	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: "",
			DB:       0,
		})
		_, err = a.rdb.Ping(context.Background()).Result()
		if err != nil {
			log.Error("failed to connect to redis db, pending comments stay in memory", zap.Error(err), zap.String("endpoint", cfg.RedisAddr))
			a.rdb = nil
		}
	}

	// Connect to the nats server
	var pub state.Publisher
	if cfg.NatsEndpoint != "" {
		a.nc, err = nats.Connect(cfg.NatsEndpoint)
		if err != nil {
			log.Error("failed to connect to nats server, state is not streamed", zap.Error(err), zap.String("endpoint", cfg.NatsEndpoint))
		} else {
			pub = state.NewNATSPublisher(a.nc, cfg.StateSubject)
		}
	}

	a.svc, err = discussion.NewService(a.explorer, a.node, wallet, a.submitter,
		state.NewForumState(cfg.Discussion, pub),
		state.NewPendingState(context.Background(), a.rdb),
		discussion.Config{
			Discussion:           cfg.Discussion,
			ErgoTreeTemplateHash: cfg.Explorer.ErgoTreeTemplateHash,
			PageSize:             cfg.Explorer.PageSize,
			SpamLimit:            cfg.SpamLimit,
			ComputeDepth:         cfg.ComputeDepth,
			Fanout:               cfg.Fanout,
			PollInterval:         cfg.PollInterval,
			ProfileTotalSupply:   cfg.ProfileTotalSupply,
			Types:                cfg.Types(),
			ProofTypes:           []string{forum.ProfileTypeNFT},
			Links:                cfg.Links,
		}, &a.wg)
	if err != nil {
		log.Error("failed to create forum service", zap.Error(err))
		os.Exit(1)
	}

	return a
}

func (a *app) close() {
	if a.nc != nil {
		a.nc.Drain()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	logger.Flush()
}

// printJSON writes v to stdout as indented json.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output - %s", err.Error())
	}
	return nil
}
