package hub

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/dcpp-hub/adchub/adc"
	"github.com/dcpp-hub/adchub/version"
)

// Hub is one ADC server: the roster it routes through, the plugin chain
// it dispatches to, the federation identity it advertises, and the
// listener that feeds it new sessions. Grounded on the Hub class shape in
// original_source/Hub.h, split into the smaller collaborator types
// (Roster, ServerManager, PluginManager, Store) that Go's lack of a
// singleton-friendly class hierarchy encourages, matching how
// other_examples' hub_adc.go composes its own server type.
type Hub struct {
	conf struct {
		sync.RWMutex
		m Map
	}

	Roster  *Roster
	Servers *ServerManager
	Plugins *PluginManager
	Store   *Store
	Metrics *Metrics

	botSID    adc.SID
	botCID    adc.CID
	passwords sync.Map // nick -> registered Tiger password (plaintext-equivalent secret, not persisted)

	tlsConf  *tls.Config
	keyprint string

	listener net.Listener
	wg       sync.WaitGroup
	closing  chan struct{}
}

// Config is everything the hub needs to start, assembled by
// cmd/adchubd/cmd/serve.go from viper-bound YAML/flags (SPEC_FULL.md
// Section A.1).
type Config struct {
	Name        string
	Desc        string
	Owner       string
	Website     string
	Email       string
	MOTD        string
	Private     bool
	Host        string
	Port        int
	MaxUsers    int
	IdleTimeout time.Duration
	ShardWidth  uint
	ShardID     uint32
	BotName     string
	BotCID      adc.CID
	TLS         *tls.Config
	Keyprint    string
}

// NewHub builds a Hub from Config; it does not start listening.
func NewHub(cfg Config) *Hub {
	h := &Hub{
		Roster:   NewRoster(),
		Servers:  NewServerManager(cfg.ShardWidth, cfg.ShardID),
		Plugins:  NewPluginManager(),
		Metrics:  NewMetrics(),
		botCID:   cfg.BotCID,
		tlsConf:  cfg.TLS,
		keyprint: cfg.Keyprint,
		closing:  make(chan struct{}),
	}
	if h.botCID == "" {
		h.botCID, _ = adc.RandomCID()
	}
	h.conf.m = make(Map)
	h.setName(cfg.Name)
	h.setDesc(cfg.Desc)
	h.setOwner(cfg.Owner)
	h.setBotName(cfg.BotName)
	h.setMOTD(cfg.MOTD)
	h.setConfigString(ConfigHubWebsite, cfg.Website)
	h.setConfigString(ConfigHubEmail, cfg.Email)
	h.setConfigBool(ConfigHubPrivate, cfg.Private)
	h.setConfigMap(ConfigIdleTimeoutSeconds, int64(cfg.IdleTimeout/time.Second))
	sid, _ := h.Servers.NextSID()
	h.botSID = sid
	return h
}

// Keyprint returns the TLS certificate keyprint advertised in adcs:// URIs,
// or "" if the hub isn't serving TLS.
func (h *Hub) Keyprint() string { return h.keyprint }

// BotSID returns the SID the hub's own bot identity answers to, used for
// routing MSG lines addressed to it as chat commands.
func (h *Hub) BotSID() adc.SID { return h.botSID }

// BotCID returns the hub bot's CID.
func (h *Hub) BotCID() adc.CID { return h.botCID }

// IdleTimeout is how long a session may go without sending any line
// (including a keep-alive) before being dropped.
func (h *Hub) IdleTimeout() time.Duration {
	v, ok := h.GetConfigInt(ConfigIdleTimeoutSeconds)
	if !ok || v <= 0 {
		return 6 * time.Minute
	}
	return time.Duration(v) * time.Second
}

// RegisteredPassword returns the Tiger-challenge password registered for
// nick, or "" if the nick isn't password-protected. Grounded on
// original_source/Settings.cpp's registered-nick table; kept in-memory
// here since long-lived operator credentials live in Store instead
// (hub/store.go), and plain registered-nick passwords are this hub's
// lighter-weight, non-operator protection mechanism.
func (h *Hub) RegisteredPassword(nick string) string {
	v, ok := h.passwords.Load(nick)
	if !ok {
		return ""
	}
	return v.(string)
}

// SetRegisteredPassword registers (or clears, with pass="") a nick's
// password.
func (h *Hub) SetRegisteredPassword(nick, pass string) {
	if pass == "" {
		h.passwords.Delete(nick)
		return
	}
	h.passwords.Store(nick, pass)
}

// SupportedFeatures is the feature set this hub advertises in ISUP.
func (h *Hub) SupportedFeatures() adc.FeatureSet {
	return adc.FeatureSet{
		"BASE": true,
		"TIGR": true,
		"UCM0":  true,
		"BLO0":  true,
		"ZLIF":  true,
	}
}

// HubInfoTokens renders the hub's own IINF line sent at the end of the
// handshake, grounded on ADCClient::handleSupports' trailing IINF.
func (h *Hub) HubInfoTokens() []string {
	return []string{
		"IINF",
		"NI" + adc.Escape(h.getName()),
		"DE" + adc.Escape(h.getDesc()),
		"VE" + adc.Escape(version.Vers),
		"HH1",
	}
}

// dispatchEvent builds a Context for ev and runs it through the plugin
// chain; a convenience used from session.go/dispatch.go call sites that
// don't need the resulting Action bits.
func (h *Hub) dispatchEvent(ev Event, p Peer, line string) {
	ctx := &Context{Event: ev, Hub: h, Peer: p, Line: line}
	h.Plugins.Dispatch(ctx)
}

// BroadcastChat sends a plain hub-bot chat message to every connected
// peer, the shape hub/hub_irc.go's SendChat and Lua's hub.broadcast() both
// need.
func (h *Hub) BroadcastChat(from adc.SID, text string) {
	buf := adc.Line1("BMSG", adc.SIDString(from), text, "PM"+adc.SIDString(from))
	h.Roster.Broadcast(buf, from, true)
	h.Metrics.ChatMessages.Inc()
}

// PrivateChat sends a directed (E-type) chat line from one SID to
// another, the shape a bot command reply or a private message uses.
func (h *Hub) PrivateChat(from, to adc.SID, text string) {
	buf := adc.Line1("EMSG", adc.SIDString(from), adc.SIDString(to), text, "PM"+adc.SIDString(from))
	h.Roster.Direct(buf, to)
	h.Metrics.ChatMessages.Inc()
}

// Disconnect removes a peer from the hub. A local Session is first sent
// reason as a status line, unless silent is true, and then has its
// connection closed; silent does not affect the IQUI other peers see.
// Any other kind of peer is only removed from the roster.
func (h *Hub) Disconnect(p Peer, reason string, silent bool) {
	if s, ok := p.(*Session); ok {
		if !silent {
			s.conn.WriteNow((&adc.ProtocolError{Code: adc.CodeWarning, Msg: reason}).StatusTokens()...)
		}
		s.conn.Close()
		return
	}
	h.Roster.Remove(p)
}

// ListenAndServe accepts connections on addr until Close is called,
// handing each one off to its own Session goroutine. Grounded on
// original_source/src/ServerSocket.cpp's accept loop, redone per the
// concurrency model recorded in SPEC_FULL.md Section D: one goroutine
// per connection rather than a single reactor thread.
func (h *Hub) ListenAndServe(addr string, maxConns int) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if h.tlsConf != nil {
		ln = tls.NewListener(ln, h.tlsConf)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	h.listener = ln
	log.Printf("hub: listening on %s", addr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-h.closing:
				return nil
			default:
				return err
			}
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.Metrics.ConnectionsTotal.Inc()
			h.Metrics.ConnectionsOpen.Inc()
			defer h.Metrics.ConnectionsOpen.Dec()
			s := newSession(h, nc)
			ctx := &Context{Event: EventClientConnected, Hub: h, Peer: s}
			h.Plugins.Dispatch(ctx)
			if ctx.Is(Disconnect) {
				nc.Close()
				return
			}
			s.Serve()
		}()
	}
}

// Close stops accepting new connections and waits, until ctx is done, for
// every session goroutine to return. It does not close the sessions'
// connections itself.
func (h *Hub) Close(ctx context.Context) error {
	close(h.closing)
	if h.listener != nil {
		h.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// URI renders this hub's adc:// (or adcs:// with a keyprint, when TLS is
// configured) connect string, for the startup banner.
func (h *Hub) URI(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if h.tlsConf != nil {
			return "adcs://" + addr
		}
		return "adc://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	hp := net.JoinHostPort(host, port)
	if h.tlsConf == nil {
		return "adc://" + hp
	}
	if h.keyprint == "" {
		return "adcs://" + hp
	}
	return fmt.Sprintf("adcs://%s?kp=%s", hp, h.keyprint)
}

// ListenPort extracts the numeric port from a "host:port" address string.
func ListenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
