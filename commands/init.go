package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"peermesh/config"

	log "github.com/sirupsen/logrus"
)

type InitOptions struct {
	NodeID            string
	HTTPListenAddress string
	RPCListenAddress  string
}

// RunInit writes a default config file, refusing to overwrite an existing one.
func RunInit(ctx context.Context, cfg *config.Config, opts InitOptions) error {
	if _, err := os.Stat(cfg.File()); err == nil {
		return fmt.Errorf("config file %s already exists", cfg.File())
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg.Node.NodeID = opts.NodeID
	if opts.HTTPListenAddress != "" {
		cfg.Network.HTTPListenAddress = opts.HTTPListenAddress
	}
	if opts.RPCListenAddress != "" {
		cfg.Network.RPCListenAddress = opts.RPCListenAddress
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.Save(); err != nil {
		return err
	}

	log.Infof("Initialized node %s (http %s, rpc %q)", cfg.Node.NodeID, cfg.Network.HTTPListenAddress, cfg.Network.RPCListenAddress)
	return nil
}
