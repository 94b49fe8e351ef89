// Package resolve implements the C5 resolver protocol server: an Endpoint
// module that owns one or more net.Listeners, accepts connections, and
// runs one goroutine per connection speaking the attribute-stream wire
// protocol of spec §4.5/§6 against a shared, read-only resolver engine.
//
// Grounded on the teacher's listener-construction pattern in
// internal/endpoint/smtp and internal/endpoint/dovecot_sasld: an endpoint
// owns its listeners, spawns an accept goroutine per listener, and spawns
// a further goroutine per accepted connection. Unlike those two (which
// hand the accepted connection to a library server, go-smtp or
// go-dovecot-sasl), this protocol has no such library anywhere in the
// pack, so the per-connection read-decode/resolve/encode-write loop is
// written directly, in the raw net.Listener/Accept idiom internal/
// updatepipe's UnixSockPipe.Listen demonstrates.
package resolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nextmx/resolved/framework/config"
	"github.com/nextmx/resolved/framework/log"
	"github.com/nextmx/resolved/framework/module"
	"github.com/nextmx/resolved/internal/attrproto"
	rcfg "github.com/nextmx/resolved/internal/config"
	coreresolve "github.com/nextmx/resolved/internal/resolve"
)

const modName = "resolve"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_requests_total",
		Help: "Resolver protocol requests served, labeled by outcome flags.",
	}, []string{"flags"})
	lookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_lookup_duration_seconds",
		Help:    "Time spent in the resolver cascade per request.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, lookupDuration)
}

// Endpoint is the C5 resolver protocol server module.
type Endpoint struct {
	addrs   []string
	log     log.Logger
	trace   hclog.Logger
	timeout time.Duration

	// configDirectory is accepted per spec §6's external contract but is
	// not consulted here; it names the base path a future main.cf/
	// master.cf loader renders stanzas relative to.
	configDirectory string

	engine *coreresolve.Engine

	listeners   []net.Listener
	listenersWg sync.WaitGroup
}

func New(_ string, addrs []string) (module.Module, error) {
	return &Endpoint{
		addrs:   addrs,
		log:     log.Logger{Name: modName, Debug: log.DefaultLogger.Debug},
		timeout: 30 * time.Second,
	}, nil
}

func (endp *Endpoint) Name() string         { return modName }
func (endp *Endpoint) InstanceName() string { return modName }

func (endp *Endpoint) Init(cfg *config.Map) error {
	cfg.Bool("debug", true, endp.log.Debug, &endp.log.Debug)
	cfg.Duration("timeout", false, false, endp.timeout, &endp.timeout)
	cfg.String("config_directory", false, false, "", &endp.configDirectory)

	rctx, finish := rcfg.BuildResolveContext(cfg, modName+"/engine")

	if _, err := cfg.Process(); err != nil {
		return err
	}
	finish(endp.log.Debug)

	endp.engine = coreresolve.NewEngine(rctx)

	lvl := hclog.Info
	if endp.log.Debug {
		lvl = hclog.Trace
	}
	endp.trace = hclog.New(&hclog.LoggerOptions{
		Name:   modName,
		Level:  lvl,
		Output: endp.log,
	})

	for _, a := range endp.addrs {
		ep, err := config.ParseEndpoint(a)
		if err != nil {
			return fmt.Errorf("%s: malformed endpoint %q: %w", modName, a, err)
		}
		l, err := net.Listen(ep.Network(), ep.Address())
		if err != nil {
			return fmt.Errorf("%s: %w", modName, err)
		}
		endp.log.Printf("listening on %v", l.Addr())
		endp.listeners = append(endp.listeners, l)

		endp.listenersWg.Add(1)
		l := l
		go func() {
			defer endp.listenersWg.Done()
			endp.serve(l)
		}()
	}

	return nil
}

func (endp *Endpoint) serve(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go endp.handleConn(conn)
	}
}

// handleConn runs the blocking read-decode/resolve/encode-write loop for
// one connection (spec §4.5: "single-threaded per connection"). A framing
// error, a wire timeout, or EOF all terminate the session.
func (endp *Endpoint) handleConn(conn net.Conn) {
	defer conn.Close()

	sessID := uuid.NewString()
	tlog := endp.trace.With("session", sessID, "remote", conn.RemoteAddr().String())

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		deadline := time.Now().Add(endp.timeout)
		if err := conn.SetDeadline(deadline); err != nil {
			tlog.Trace("failed to set deadline, closing session", "error", err)
			return
		}

		req, err := attrproto.ReadRecord(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				tlog.Trace("read failed, closing session", "error", err)
			}
			return
		}
		tlog.Trace("request received", "record", fmt.Sprint(req))

		if err := attrproto.Strict(req, "addr"); err != nil {
			tlog.Trace("malformed request, closing session", "error", err)
			return
		}
		addr, _ := req.Get("addr")

		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		start := time.Now()
		res := endp.engine.Resolve(ctx, coreresolve.Recipient, addr)
		lookupDuration.Observe(time.Since(start).Seconds())
		cancel()

		requestsTotal.WithLabelValues(res.Flags.String()).Inc()

		reply := attrproto.NewRecord(
			"transport", res.Channel,
			"nexthop", res.Nexthop,
			"recipient", res.Recipient,
			"flags", strconv.Itoa(int(res.Flags)),
		)
		tlog.Trace("reply sent", "record", fmt.Sprint(reply))

		if err := attrproto.WriteRecord(w, reply); err != nil {
			tlog.Trace("write failed, closing session", "error", err)
			return
		}
	}
}

func (endp *Endpoint) Close() error {
	var firstErr error
	for _, l := range endp.listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	endp.listenersWg.Wait()
	return firstErr
}

func init() {
	module.RegisterEndpoint(modName, New)
}
