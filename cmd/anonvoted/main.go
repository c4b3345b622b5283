package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/anonvote/anonvote/coordinator"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/registry"
	"github.com/anonvote/anonvote/service"
	"github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/util"
	"github.com/anonvote/anonvote/web3"
)

func main() {
	dataDir := flag.String("datadir", "", "data directory (default ~/.anonvote)")
	host := flag.String("host", "0.0.0.0", "API host to bind")
	port := flag.Int("port", 9090, "API port to bind")
	w3rpc := flag.String("w3rpc", "http://localhost:8545", "web3 rpc endpoint")
	privKey := flag.String("privkey", "", "private key of the ledger account used for finalize transactions")
	salt := flag.String("salt", "", "secret derivation salt, must stay stable for the lifetime of the deployment")
	adminToken := flag.String("admin-token", "", "admin token to provision at startup")
	monitorInterval := flag.Duration("monitor-interval", time.Minute, "election monitor scan interval")
	skipArtifacts := flag.Bool("skip-artifacts", false, "do not download the circuit artifacts on startup")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	flag.Parse()
	log.Init(*logLevel, "stdout")

	if *salt == "" {
		log.Fatal("missing --salt: voter secrets cannot be derived without it")
	}
	if *dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("cannot resolve home directory: %v", err)
		}
		*dataDir = filepath.Join(home, ".anonvote")
	}

	database, err := metadb.New(db.TypePebble, filepath.Join(*dataDir, "db"))
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}
	stg := storage.New(database)
	reg := registry.New(database)

	if *adminToken == "" {
		*adminToken = util.RandomHex(16)
		log.Infow("generated admin token", "token", *adminToken)
	}
	if err := stg.AddAdminToken(*adminToken); err != nil {
		log.Fatalf("cannot store admin token: %v", err)
	}

	contracts, err := web3.New(*w3rpc)
	if err != nil {
		log.Fatal(err)
	}
	if *privKey != "" {
		if err := contracts.SetAccountPrivateKey(*privKey); err != nil {
			log.Fatal(err)
		}
		log.Infow("ledger account configured",
			"address", contracts.AccountAddress().Hex(), "chainId", contracts.ChainID)
	} else {
		log.Warnw("no private key configured, finalize will fail until one is set")
	}

	if !*skipArtifacts {
		go func() {
			if err := service.DownloadArtifacts(10 * time.Minute); err != nil {
				log.Warnw("failed to download circuit artifacts", "error", err.Error())
			}
		}()
	}

	coord := coordinator.NewCoordinator(stg, reg, contracts, *salt)

	ctx := context.Background()
	monitor := service.NewElectionMonitor(stg, *monitorInterval)
	if err := monitor.Start(ctx); err != nil {
		log.Fatal(err)
	}
	apiSrv := service.NewAPI(stg, coord, *host, *port)
	if err := apiSrv.Start(ctx); err != nil {
		log.Fatal(err)
	}
	log.Infow("anonvoted started", "host", *host, "port", *port, "datadir", *dataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	monitor.Stop()
	apiSrv.Stop()
}
