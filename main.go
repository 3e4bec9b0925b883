package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"peermesh/commands"
	"peermesh/config"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func setLogOutput(cfg *config.Config) {
	if cfg.Log.Filename == "" {
		return
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}
	if cfg.Log.UseStdOut {
		log.SetOutput(io.MultiWriter(os.Stdout, lj))
	} else {
		log.SetOutput(lj)
	}
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

// loadConfig reads the config file, or falls back to defaults for client-side
// subcommands run without one.
func loadConfig(configFile string, required bool) *config.Config {
	if configFile == "" && !required {
		cfg := config.NewEmptyConfig("")
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid default config: %v", err)
		}
		return cfg
	}

	checkConfig(configFile)
	cfg, err := config.NewConfigFromFile(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setLogOutput(cfg)
	return cfg
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	nodeID := initCmd.String("node-id", "", "Node id (defaults to the hostname)")
	httpAddr := initCmd.String("http", "", "HTTP listen address")
	rpcAddr := initCmd.String("rpc", "", "CBOR RPC listen address")
	registerGlobalFlags(initCmd)

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	registerGlobalFlags(serveCmd)

	connectCmd := flag.NewFlagSet("connect", flag.ExitOnError)
	topologyFile := connectCmd.String("topology", "", "Path to the topology YAML file")
	connectNode := connectCmd.String("node", "", "Node to connect (all nodes when empty)")
	connectTarget := connectCmd.String("target", "", "Reach the node at this address instead of its topology address")
	registerGlobalFlags(connectCmd)

	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	statusTarget := statusCmd.String("target", "", "HTTP address of the node (defaults to the configured listener)")
	statusRPC := statusCmd.String("rpc", "", "Query the node over CBOR RPC at this address instead")
	registerGlobalFlags(statusCmd)

	if len(os.Args) < 2 {
		log.WithField("args", os.Args).Fatal("Expected a subcommand: init, serve, connect or status")
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		err = commands.RunInit(ctx, cfg, commands.InitOptions{
			NodeID:            *nodeID,
			HTTPListenAddress: *httpAddr,
			RPCListenAddress:  *rpcAddr,
		})
	case "serve":
		serveCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile, true)
		err = commands.RunServe(ctx, cfg)
	case "connect":
		connectCmd.Parse(args)
		setLogLevel(*logLevel)
		if *topologyFile == "" {
			log.Fatal("Topology file not specified")
		}
		cfg := loadConfig(*configFile, false)
		err = commands.RunConnect(ctx, cfg, *topologyFile, *connectNode, *connectTarget)
	case "status":
		statusCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile, false)
		err = commands.RunStatus(ctx, cfg, *statusTarget, *statusRPC, os.Stdout)
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}
