// Package config defines the flat, environment/flag-backed configuration
// struct threaded explicitly from cmd/inboxd/main.go down into the
// inbox package. Nothing in pkg/inbox reads it directly; cmd/inboxd parses
// it once at startup and passes the fields it uses (data directory, secret
// key, relay lists, log level) down explicitly. ConnectTimeout is parsed but
// not read anywhere.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	log2 "github.com/prolic/hanostr/pkg/log"
)

var log = log2.GetStd()

// StartCmd runs the inbox controller until interrupted.
type StartCmd struct{}

// StopCmd selects the stop subcommand. No running instance is tracked, so
// it signals nothing; cmd/inboxd only logs that.
type StopCmd struct{}

// DumpCmd prints diagnostic snapshots of the local store.
type DumpCmd struct {
	Table string `arg:"positional" help:"table to dump: profiles, follows, post_timeline, chat_timeline"`
}

// Config is the flat struct parsed once by go-arg in cmd/inboxd and
// threaded down explicitly — never resolved from a package-level global.
type Config struct {
	StartCmd *StartCmd `arg:"subcommand:start" json:"-" help:"connect to relays and begin ingesting events"`
	StopCmd  *StopCmd  `arg:"subcommand:stop" json:"-" help:"report that no running instance is tracked (stops nothing)"`
	DumpCmd  *DumpCmd  `arg:"subcommand:dump" json:"-" help:"dump a local store table for diagnostics"`

	DataDir string `arg:"-d,--datadir,env:INBOX_DATA_DIR" json:"data_dir" help:"directory holding the per-viewer badger environment"`
	SecKey  string `arg:"-s,--seckey,env:INBOX_SECKEY" json:"-" help:"viewer's secret key, hexadecimal"`

	DefaultRelays   []string `arg:"-r,--relay,separate,env:INBOX_DEFAULT_RELAYS" json:"default_relays" help:"relays to use for cold-start bootstrap"`
	DefaultDMRelays []string `arg:"--dm-relay,separate,env:INBOX_DEFAULT_DM_RELAYS" json:"default_dm_relays" help:"relays to use as the default preferred-DM-relay list"`

	ConnectTimeout time.Duration `arg:"--connect-timeout,env:INBOX_CONNECT_TIMEOUT" json:"connect_timeout" help:"per-relay dial timeout (not read: relays are dialed with a fixed 10s timeout)"`
	LogLevel       string        `arg:"--loglevel,env:INBOX_LOG_LEVEL" json:"log_level" help:"log level [off,fatal,error,warn,info,debug,trace]"`
}

// Default returns a Config with the same baseline values the teacher's
// GetDefaultConfig establishes for its own relay.
func Default() *Config {
	return &Config{
		DataDir: "./inbox-data",
		DefaultRelays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
			"wss://relay.nostr.band",
		},
		DefaultDMRelays: []string{
			"wss://auth.nostr1.com",
		},
		ConnectTimeout: 10 * time.Second,
		LogLevel:       "info",
	}
}

// Save writes the config as indented JSON, mirroring the teacher's
// Config.Save.
func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); log.E.Chk(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); log.E.Chk(err) {
		return
	}
	return
}

// Load reads a previously Saved config, overwriting c in place.
func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		log.E.Chk(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); log.E.Chk(err) {
		return
	}
	if err = json.Unmarshal(b, c); log.E.Chk(err) {
		return
	}
	return
}

// ParseLogLevel maps the config's LogLevel string onto pkg/log's Level,
// defaulting to Info on an unrecognized value.
func ParseLogLevel(s string) log2.Level {
	switch s {
	case "off":
		return log2.Off
	case "fatal":
		return log2.Fatal
	case "error":
		return log2.Error
	case "warn":
		return log2.Warn
	case "debug":
		return log2.Debug
	case "trace":
		return log2.Trace
	default:
		return log2.Info
	}
}
