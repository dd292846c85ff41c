// Package config holds the tunables of the Mix Coordinator, Governance
// Store, Rate Limiter, and Gossip/Sync layer, bound through spf13/viper the
// way the teacher's src/config package binds Babble's node config.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

// Default filenames.
const (
	DefaultKeyfile    = "masternode_key"
	DefaultBadgerFile = "governance_db"
)

// Default configuration values, taken from spec section 6 and section 4.4.
const (
	DefaultLogLevel = "info"

	DefaultAcceptTimeout  = 15 * time.Second
	DefaultSigningTimeout = 15 * time.Second

	DefaultQueueTTLBlocks = 1

	DefaultEntryMax      = 9
	DefaultMinPoolInputs = 3
	DefaultMaxPoolInputs = 5

	DefaultMinProtocolVersion = 70015

	DefaultUpdateMin    = 60 * time.Second
	DefaultOrphanTTL    = 60 * time.Minute
	DefaultDeletionDelay = 10 * time.Minute

	DefaultMaxFutureDeviation       = 60 * time.Minute
	DefaultReliablePropagationTime  = 60 * time.Second

	DefaultRateBufferSize = 5
	DefaultMaxCacheSize   = 1000000

	DefaultMinQuorum = 10

	DefaultSuperblockCycleBlocks  = 16616
	DefaultBlockSpacingSeconds    = 150

	DefaultPeersPerHashMax  = 3
	DefaultVoteRequestRetry = 60 * time.Minute
)

// Config collects every tunable named in spec section 6, plus the ambient
// concerns (data directory, log level, persistence) the teacher always
// threads through its own Config.
type Config struct {
	// DataDir is the top-level directory for keys and the optional governance
	// database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Store activates the badger-backed governance store; when false the
	// store is purely in-memory and does not survive a restart.
	Store bool `mapstructure:"store"`

	// AcceptTimeout bounds how long a session may sit in AcceptingEntries
	// waiting for entries; once it elapses the session finalizes if it holds
	// at least MinPoolInputs entries and is reset otherwise.
	AcceptTimeout time.Duration `mapstructure:"accept-timeout"`

	// SigningTimeout bounds how long a session may sit in Signing waiting for
	// partial signatures before it is reset.
	SigningTimeout time.Duration `mapstructure:"signing-timeout"`

	// QueueTTLBlocks is how many blocks a Queue advertisement remains valid.
	QueueTTLBlocks int32 `mapstructure:"queue-ttl-blocks"`

	// EntryMax bounds the number of inputs (and 3x that, outputs) a single
	// CJTXIN entry may contain.
	EntryMax int `mapstructure:"entry-max"`

	// MinPoolInputs is the minimum number of participants before a session
	// may move from Queue to AcceptingEntries.
	MinPoolInputs int `mapstructure:"min-pool-inputs"`

	// MaxPoolInputs bounds session.participants.
	MaxPoolInputs int `mapstructure:"max-pool-inputs"`

	// MinProtocolVersion is the minimum peer protocol version eligible for
	// relay of mixing and governance messages.
	MinProtocolVersion int `mapstructure:"min-protocol-version"`

	// UpdateMin is the minimum interval between votes from the same
	// masternode, on the same signal, for the same object.
	UpdateMin time.Duration `mapstructure:"update-min"`

	// OrphanTTL bounds how long an object with an unknown signing masternode
	// is held in masternode_orphan before being dropped.
	OrphanTTL time.Duration `mapstructure:"orphan-ttl"`

	// DeletionDelay is how long a latched delete/expired flag must hold
	// before the object is evicted to the erased tombstone set.
	DeletionDelay time.Duration `mapstructure:"deletion-delay"`

	// MaxFutureDeviation bounds how far into the future a governance object's
	// created_time may be before it is rejected outright.
	MaxFutureDeviation time.Duration `mapstructure:"max-future-deviation"`

	// ReliablePropagationTime is the grace period before additional_relay
	// re-advertises an object created close to the future-deviation horizon.
	ReliablePropagationTime time.Duration `mapstructure:"reliable-propagation-time"`

	// RateBufferSize is the ring buffer capacity of the rate limiter.
	RateBufferSize int `mapstructure:"rate-buffer-size"`

	// MaxCacheSize bounds the vote_to_object and invalid_votes LRUs.
	MaxCacheSize int `mapstructure:"max-cache-size"`

	// MinQuorum is the absolute floor used alongside the proportional
	// quorum when computing sentinel flags.
	MinQuorum int `mapstructure:"min-quorum"`

	// SuperblockCycleBlocks and BlockSpacingSeconds together define
	// SuperblockCycleSeconds, used by the rate limiter's trigger policy.
	SuperblockCycleBlocks int `mapstructure:"superblock-cycle-blocks"`
	BlockSpacingSeconds   int `mapstructure:"block-spacing-seconds"`

	// PeersPerHashMax caps concurrent vote-bloom solicitations per object.
	PeersPerHashMax int `mapstructure:"peers-per-hash-max"`

	// VoteRequestRetry is the minimum interval before re-asking the same peer
	// for votes on the same object.
	VoteRequestRetry time.Duration `mapstructure:"vote-request-retry"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a Config with every default value from spec
// section 6 and section 4.4 applied.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:                 DefaultDataDir(),
		LogLevel:                DefaultLogLevel,
		Store:                   false,
		AcceptTimeout:           DefaultAcceptTimeout,
		SigningTimeout:          DefaultSigningTimeout,
		QueueTTLBlocks:          DefaultQueueTTLBlocks,
		EntryMax:                DefaultEntryMax,
		MinPoolInputs:           DefaultMinPoolInputs,
		MaxPoolInputs:           DefaultMaxPoolInputs,
		MinProtocolVersion:      DefaultMinProtocolVersion,
		UpdateMin:               DefaultUpdateMin,
		OrphanTTL:               DefaultOrphanTTL,
		DeletionDelay:           DefaultDeletionDelay,
		MaxFutureDeviation:      DefaultMaxFutureDeviation,
		ReliablePropagationTime: DefaultReliablePropagationTime,
		RateBufferSize:          DefaultRateBufferSize,
		MaxCacheSize:            DefaultMaxCacheSize,
		MinQuorum:               DefaultMinQuorum,
		SuperblockCycleBlocks:   DefaultSuperblockCycleBlocks,
		BlockSpacingSeconds:     DefaultBlockSpacingSeconds,
		PeersPerHashMax:         DefaultPeersPerHashMax,
		VoteRequestRetry:        DefaultVoteRequestRetry,
	}
}

// SuperblockCycleSeconds is SuperblockCycleBlocks * BlockSpacingSeconds, the
// unit the rate limiter's trigger policy operates in (spec section 4.4).
func (c *Config) SuperblockCycleSeconds() int64 {
	return int64(c.SuperblockCycleBlocks) * int64(c.BlockSpacingSeconds)
}

// Keyfile returns the full path of the file containing the masternode's
// private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// DatabaseDir returns the full path of the optional badger-backed governance
// store.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.DataDir, DefaultBadgerFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "masterd".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "masterd")
}

// DefaultDataDir returns the default directory for masternode configuration
// and data, respecting OS conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "MASTERD")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "MASTERD")
	default:
		return filepath.Join(home, ".masterd")
	}
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a logrus log level, defaulting to Info for
// anything unrecognized.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
