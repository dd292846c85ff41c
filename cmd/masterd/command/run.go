package command

import (
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChainCoinUnlimited/ChainCoin/src/crypto/keys"
	"github.com/ChainCoinUnlimited/ChainCoin/src/dispatch"
	"github.com/ChainCoinUnlimited/ChainCoin/src/engine"
	"github.com/ChainCoinUnlimited/ChainCoin/src/gossip"
	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host/standalone"
	"github.com/ChainCoinUnlimited/ChainCoin/src/mix"
	"github.com/ChainCoinUnlimited/ChainCoin/src/queue"
	"github.com/ChainCoinUnlimited/ChainCoin/src/ratelimit"
)

var (
	collateralTxid string
	collateralVout uint32
	payeeScriptHex string
)

// tipPollInterval is how often the run loop re-checks the chain height in
// the absence of a real chain-tip notification.
const tipPollInterval = 15 * time.Second

// NewRunCmd returns the command that starts the mixing and governance
// service.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the mixing and governance service",
		PreRunE: loadConfig,
		RunE:    runMasterd,
	}
	AddRunFlags(cmd)
	return cmd
}

// AddRunFlags adds flags to the run command.
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", cliConfig.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", cliConfig.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("store", cliConfig.Store, "Persist the governance store with badger instead of memory-only")
	cmd.Flags().Duration("accept-timeout", cliConfig.AcceptTimeout, "How long a session waits in accepting-entries before finalizing")
	cmd.Flags().Duration("signing-timeout", cliConfig.SigningTimeout, "How long a session waits for signatures before resetting")
	cmd.Flags().Int32("queue-ttl-blocks", cliConfig.QueueTTLBlocks, "Blocks a queue advertisement stays valid")
	cmd.Flags().Int("entry-max", cliConfig.EntryMax, "Maximum inputs accepted in a single entry")
	cmd.Flags().Int("min-pool-inputs", cliConfig.MinPoolInputs, "Minimum participants before accepting entries")
	cmd.Flags().Int("max-pool-inputs", cliConfig.MaxPoolInputs, "Maximum participants in a session")
	cmd.Flags().Int("min-protocol-version", cliConfig.MinProtocolVersion, "Minimum peer protocol version eligible for relay")
	cmd.Flags().Duration("update-min", cliConfig.UpdateMin, "Minimum interval between votes from the same masternode on the same signal")
	cmd.Flags().Duration("orphan-ttl", cliConfig.OrphanTTL, "How long an orphan object is held before being dropped")
	cmd.Flags().Duration("deletion-delay", cliConfig.DeletionDelay, "How long a flagged object is held before being erased")
	cmd.Flags().Duration("max-future-deviation", cliConfig.MaxFutureDeviation, "How far into the future a created_time may be")
	cmd.Flags().Duration("reliable-propagation-time", cliConfig.ReliablePropagationTime, "Grace period before re-advertising a recently created object")
	cmd.Flags().Int("rate-buffer-size", cliConfig.RateBufferSize, "Ring buffer capacity of the rate limiter")
	cmd.Flags().Int("max-cache-size", cliConfig.MaxCacheSize, "Bound on the vote and invalid-vote LRUs")
	cmd.Flags().Int("min-quorum", cliConfig.MinQuorum, "Absolute floor used alongside the proportional quorum")
	cmd.Flags().Int("superblock-cycle-blocks", cliConfig.SuperblockCycleBlocks, "Blocks per superblock cycle")
	cmd.Flags().Int("block-spacing-seconds", cliConfig.BlockSpacingSeconds, "Target seconds between blocks")
	cmd.Flags().Int("peers-per-hash-max", cliConfig.PeersPerHashMax, "Maximum concurrent vote-bloom solicitations per object")
	cmd.Flags().Duration("vote-request-retry", cliConfig.VoteRequestRetry, "Minimum interval before re-asking a peer for votes")

	cmd.Flags().StringVar(&collateralTxid, "collateral-txid", "", "Txid of this masternode's collateral output")
	cmd.Flags().Uint32Var(&collateralVout, "collateral-vout", 0, "Output index of this masternode's collateral")
	cmd.Flags().StringVar(&payeeScriptHex, "payee-script", "", "Hex-encoded output script paid on a successful mix")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	cliConfig.Logger().WithFields(logrus.Fields{
		"datadir":         cliConfig.DataDir,
		"log":             cliConfig.LogLevel,
		"store":           cliConfig.Store,
		"min-pool-inputs": cliConfig.MinPoolInputs,
		"max-pool-inputs": cliConfig.MaxPoolInputs,
	}).Debug("RUN")

	return nil
}

// bindFlagsLoadViper binds flags, reads an optional masterd.toml from
// datadir, and unmarshals both into cliConfig.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := viper.Unmarshal(cliConfig); err != nil {
		return err
	}

	viper.SetConfigName("masterd")
	viper.AddConfigPath(cliConfig.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		cliConfig.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		cliConfig.Logger().Debugf("No config file found in: %s", cliConfig.DataDir)
	} else {
		return err
	}

	return viper.Unmarshal(cliConfig)
}

func runMasterd(cmd *cobra.Command, args []string) error {
	logger := cliConfig.Logger()

	priv, err := keys.NewSimpleKeyfile(cliConfig.Keyfile()).ReadKey()
	if err != nil {
		logger.Error("Reading masternode key: ", err)
		return err
	}
	signKey := keys.ToBtcecPrivateKey(priv)

	txidHash, err := chainhash.NewHashFromStr(collateralTxid)
	if err != nil {
		logger.Error("Parsing --collateral-txid: ", err)
		return err
	}
	self := wire.OutPoint{Hash: *txidHash, Index: collateralVout}

	payeeScript, err := hex.DecodeString(payeeScriptHex)
	if err != nil {
		logger.Error("Parsing --payee-script: ", err)
		return err
	}

	h := standalone.New(self, keys.FromPublicKey(&priv.PublicKey), logger)
	h.SetHeight(0)

	rate := ratelimit.NewTracker(cliConfig.RateBufferSize)
	store := governance.NewStore(cliConfig, h, h, rate, logger)

	var persister *governance.Persister
	if cliConfig.Store {
		persister, err = governance.OpenPersister(cliConfig.DatabaseDir())
		if err != nil {
			logger.Error("Opening governance store: ", err)
			return err
		}
		defer persister.Close()

		if snap, ok, loadErr := persister.Load(); loadErr != nil {
			logger.Error("Loading governance snapshot: ", loadErr)
			return loadErr
		} else if ok {
			store.LoadSnapshot(snap, rate)
			logger.WithField("objects", len(snap.Objects)).Info("loaded governance snapshot")
		}
	}

	broadcaster := queue.NewBroadcaster(h, cliConfig.MinProtocolVersion)
	coordinator := mix.NewCoordinator(cliConfig, h, h, h, host.CryptoRng{}, broadcaster, self, signKey, payeeScript, logger)
	layer := gossip.NewLayer(store, h)
	dispatch.New(cliConfig, coordinator, store, layer, broadcaster, h, logger)

	eng := engine.New(cliConfig, h, coordinator, store, layer, logger)

	sched := engine.NewTickerScheduler()
	cancelTick := sched.ScheduleEvery(func() { eng.Tick(time.Now().Unix()) }, 5*time.Minute)
	defer cancelTick()

	lastHeight := h.Height()
	cancelTip := sched.ScheduleEvery(func() {
		height := h.Height()
		if height == lastHeight {
			return
		}
		lastHeight = height
		eng.OnNewTip(time.Now().Unix(), height)
	}, tipPollInterval)
	defer cancelTip()

	logger.Info("masterd running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("masterd shutting down")

	if persister != nil {
		if err := persister.Save(store.Snapshot(rate)); err != nil {
			logger.Error("Saving governance snapshot: ", err)
			return err
		}
	}

	return nil
}
