// Package config is the on-disk configuration store: peer list, cache
// root, daemon port, and mirror endpoints, persisted as a TOML file under
// the user's home directory.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/naoina/toml"

	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
)

const (
	DefaultDaemonPort = 9090
	dirName           = ".hfmc"
	fileName          = "config.toml"
)

// tomlSettings matches Go struct field names to TOML keys unchanged. An
// unrecognized key logs a warning instead of failing the load, so an old
// binary can read a newer config file.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		log.Warn("config: field not recognized, ignoring", "type", rt.String(), "field", field)
		return nil
	},
}

// PeerEntry is a configured peer address.
type PeerEntry struct {
	IP   string
	Port int
}

// Config is the on-disk configuration document.
type Config struct {
	CacheDir   string
	DaemonPort int
	Peers      []PeerEntry
	Mirrors    []string

	CloudflareAPIToken string
	CloudflareZoneID   string
	CloudflareURLBase  string
}

func defaultConfig(cacheRoot string) Config {
	return Config{
		CacheDir:   cacheRoot,
		DaemonPort: DefaultDaemonPort,
		Mirrors:    []string{"https://hf-mirror.com", "https://huggingface.co"},
	}
}

// Dir returns the configuration directory, honoring $HFMC_HOME for tests.
func Dir() string {
	if home := os.Getenv("HFMC_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dirName)
}

func filePath() string { return filepath.Join(Dir(), fileName) }

func defaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cache", "hfmc")
}

// Init writes a default configuration file if none exists.
func Init() error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(filePath()); err == nil {
		return nil
	}
	return Save(defaultConfig(defaultCacheRoot()))
}

// Load reads the configuration file, initializing it with defaults first
// if absent.
func Load() (Config, error) {
	if err := Init(); err != nil {
		return Config{}, err
	}

	f, err := os.Open(filePath())
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var cfg Config
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		if _, ok := err.(*toml.LineError); ok {
			return Config{}, fmt.Errorf("%s: %w", filePath(), err)
		}
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to the configuration file.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return err
	}
	b, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath(), b, 0o644)
}

// ResetCacheDir restores the default cache root, persists it, and
// returns the restored value.
func ResetCacheDir() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	cfg.CacheDir = defaultCacheRoot()
	if err := Save(cfg); err != nil {
		return "", err
	}
	return cfg.CacheDir, nil
}

// ResetDaemonPort restores the default daemon port, persists it, and
// returns the restored value.
func ResetDaemonPort() (int, error) {
	cfg, err := Load()
	if err != nil {
		return 0, err
	}
	cfg.DaemonPort = DefaultDaemonPort
	if err := Save(cfg); err != nil {
		return 0, err
	}
	return cfg.DaemonPort, nil
}

// CDNSettings configures the optional Cloudflare purge notifier.
type CDNSettings struct {
	APIToken string
	ZoneID   string
	URLBase  string
}

// Reader is the narrow read-only view the daemon and orchestrator
// consume.
type Reader interface {
	GetPeers() []peer.Peer
	GetCacheRoot() string
	GetDaemonPort() int
	GetMirrors() []string
	GetCDNSettings() CDNSettings
}

// fileReader is the default Reader, backed by the TOML file above.
type fileReader struct{}

func NewReader() Reader { return fileReader{} }

func (fileReader) GetPeers() []peer.Peer {
	cfg, err := Load()
	if err != nil {
		log.Error("config: failed to load", "err", err)
		return nil
	}
	out := make([]peer.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		out = append(out, peer.Peer{IP: p.IP, Port: p.Port})
	}
	return out
}

func (fileReader) GetCacheRoot() string {
	cfg, err := Load()
	if err != nil {
		return defaultCacheRoot()
	}
	return cfg.CacheDir
}

func (fileReader) GetDaemonPort() int {
	cfg, err := Load()
	if err != nil {
		return DefaultDaemonPort
	}
	return cfg.DaemonPort
}

func (fileReader) GetMirrors() []string {
	cfg, err := Load()
	if err != nil {
		return nil
	}
	return cfg.Mirrors
}

func (fileReader) GetCDNSettings() CDNSettings {
	cfg, err := Load()
	if err != nil {
		return CDNSettings{}
	}
	return CDNSettings{APIToken: cfg.CloudflareAPIToken, ZoneID: cfg.CloudflareZoneID, URLBase: cfg.CloudflareURLBase}
}

// AddPeer appends a peer to the persisted configuration. Callers notify
// the running daemon afterwards via its peers_change endpoint.
func AddPeer(ip string, port int) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	for _, p := range cfg.Peers {
		if p.IP == ip && p.Port == port {
			return nil
		}
	}
	cfg.Peers = append(cfg.Peers, PeerEntry{IP: ip, Port: port})
	return Save(cfg)
}

// RemovePeer removes a peer from the persisted configuration.
func RemovePeer(ip string, port int) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	out := cfg.Peers[:0]
	for _, p := range cfg.Peers {
		if p.IP == ip && p.Port == port {
			continue
		}
		out = append(out, p)
	}
	cfg.Peers = out
	return Save(cfg)
}
