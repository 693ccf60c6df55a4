// Package config loads mintpool's environment-driven configuration. Every
// variable here is enumerated in SPEC_FULL.md §6 and corresponds 1:1 to a
// field on the original Rust node's #[derive(Envconfig)] Config struct; this
// is the same binding style applied with the Go ecosystem's equivalent,
// kelseyhightower/envconfig.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/tyler-smith/go-bip39"

	"github.com/probeum/mintpool/log"
)

// defaultChainRPCs holds public fallback RPC endpoints for the chain ids the
// original's bundled data/chains.json shipped by default, so a node can come
// up without any CHAIN_<id>_RPC_WSS overrides configured at all.
var defaultChainRPCs = map[uint64]string{
	7777777: "wss://rpc.zora.energy",
	8453:    "wss://base-rpc.publicnode.com",
}

// ChainInclusionMode controls how a peer's InclusionClaim is trusted.
type ChainInclusionMode string

const (
	// ModeCheck retires locally on watcher observation and rebroadcasts the
	// claim so peers who don't watch the chain can retire too.
	ModeCheck ChainInclusionMode = "check"
	// ModeVerify never trusts a peer claim without an RPC round trip.
	ModeVerify ChainInclusionMode = "verify"
	// ModeTrust retires on a claim from any configured trusted peer, no RPC.
	ModeTrust ChainInclusionMode = "trust"
)

// BootNodes selects how a node seeds its initial peer set.
type BootNodes struct {
	Mode  string // "chain", "none", or "custom"
	Peers []string
}

// Config is the full environment-driven configuration surface of a mintpool
// node, per SPEC_FULL.md §6.
type Config struct {
	// Secret derives the node's Ed25519 identity keypair. Accepts 32 bytes
	// of hex, or (as a convenience not present in the original) a BIP-39
	// mnemonic phrase, which is reduced to a 32-byte seed.
	Secret string `envconfig:"SECRET" required:"true"`

	PeerPort        uint16 `envconfig:"PEER_PORT" default:"7778"`
	APIPort         uint16 `envconfig:"API_PORT" default:"7777"`
	ConnectExternal bool   `envconfig:"CONNECT_EXTERNAL" default:"true"`

	DatabaseURL          string `envconfig:"DATABASE_URL"`
	PersistState         bool   `envconfig:"PERSIST_STATE" default:"false"`
	PruneMintedPremints  bool   `envconfig:"PRUNE_MINTED_PREMINTS" default:"true"`

	PeerLimit      uint64 `envconfig:"PEER_LIMIT" default:"1000"`
	TrustedPeers   string `envconfig:"TRUSTED_PEERS"`
	ExternalAddress string `envconfig:"EXTERNAL_ADDRESS"`

	PremintTypes       string `envconfig:"PREMINT_TYPES" default:"zora_premint_v2"`
	SupportedChainIDs  string `envconfig:"SUPPORTED_CHAIN_IDS" default:"7777777,8453"`

	ChainInclusionMode ChainInclusionMode `envconfig:"CHAIN_INCLUSION_MODE" default:"verify"`

	EnableRPC      bool   `envconfig:"ENABLE_RPC" default:"true"`
	AdminAPISecret string `envconfig:"ADMIN_API_SECRET"`
	RateLimitRPS   uint32 `envconfig:"RATE_LIMIT_RPS" default:"2"`
	BootNodesRaw   string `envconfig:"BOOT_NODES" default:"chain"`

	NodeID             string `envconfig:"NODE_ID"`
	Interactive        bool   `envconfig:"INTERACTIVE" default:"false"`
	SyncLookbackHours  uint64 `envconfig:"SYNC_LOOKBACK_HOURS" default:"24"`
}

// Load reads and validates configuration from the process environment.
// Per SPEC_FULL.md §7 (Configuration failures fail fast at startup), any
// error returned here should be treated as fatal by the caller before any
// component starts.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, err := c.IdentitySeed(); err != nil {
		return nil, fmt.Errorf("invalid SECRET: %w", err)
	}
	if len(c.PremintKinds()) == 0 {
		return nil, fmt.Errorf("PREMINT_TYPES must name at least one premint kind")
	}
	if len(c.SupportedChainIDList()) == 0 {
		return nil, fmt.Errorf("SUPPORTED_CHAIN_IDS must name at least one chain id")
	}
	switch c.ChainInclusionMode {
	case ModeCheck, ModeVerify, ModeTrust:
	default:
		return nil, fmt.Errorf("unknown CHAIN_INCLUSION_MODE %q", c.ChainInclusionMode)
	}
	if c.PersistState && c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when PERSIST_STATE=true")
	}
	return &c, nil
}

// IdentitySeed reduces Secret to exactly 32 bytes usable as an Ed25519 seed.
func (c *Config) IdentitySeed() ([]byte, error) {
	if b, err := hex.DecodeString(strings.TrimPrefix(c.Secret, "0x")); err == nil && len(b) == 32 {
		return b, nil
	}
	if bip39.IsMnemonicValid(c.Secret) {
		seed := bip39.NewSeed(c.Secret, "")
		return seed[:32], nil
	}
	return nil, fmt.Errorf("SECRET must be 32 bytes of hex or a valid BIP-39 mnemonic")
}

// PremintKinds parses the comma-separated PREMINT_TYPES list.
func (c *Config) PremintKinds() []string {
	return splitCSV(c.PremintTypes)
}

// SupportedChainIDList parses the comma-separated SUPPORTED_CHAIN_IDS list.
func (c *Config) SupportedChainIDList() []uint64 {
	parts := splitCSV(c.SupportedChainIDs)
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			log.Warn("ignoring malformed chain id in SUPPORTED_CHAIN_IDS", "value", p, "err", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ChainRPCURLs resolves an RPC websocket endpoint for every configured chain
// id. Per-chain CHAIN_<id>_RPC_WSS overrides take precedence; chains with no
// override and no built-in default are omitted (callers should treat a
// missing entry for a configured chain id as a startup error).
func (c *Config) ChainRPCURLs() map[uint64]string {
	urls := make(map[uint64]string)
	for _, id := range c.SupportedChainIDList() {
		envVar := fmt.Sprintf("CHAIN_%d_RPC_WSS", id)
		if v := os.Getenv(envVar); v != "" {
			urls[id] = v
			continue
		}
		if v, ok := defaultChainRPCs[id]; ok {
			urls[id] = v
		}
	}
	return urls
}

// TrustedPeerIDs parses the comma-separated TRUSTED_PEERS list.
func (c *Config) TrustedPeerIDs() []string {
	return splitCSV(c.TrustedPeers)
}

// BootNodes interprets BOOT_NODES ("chain", "none", or a custom comma list).
func (c *Config) BootNodes() BootNodes {
	switch c.BootNodesRaw {
	case "", "chain":
		return BootNodes{Mode: "chain"}
	case "none":
		return BootNodes{Mode: "none"}
	default:
		return BootNodes{Mode: "custom", Peers: splitCSV(c.BootNodesRaw)}
	}
}

// BindHost returns the address new listeners should bind, honoring
// CONNECT_EXTERNAL per SPEC_FULL.md / spec.md §6.
func (c *Config) BindHost() string {
	if c.ConnectExternal {
		return "0.0.0.0"
	}
	return "127.0.0.1"
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
