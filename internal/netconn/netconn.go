// Package netconn implements ports.Connectivity with a real TCP reachability
// poller, since the sync core has no platform network-reachability API to
// call into directly. The non-blocking listener dispatch mirrors the
// pattern synccore.Engine uses for its own status events.
package netconn

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Poller periodically dials probeAddr and reports the result as online.
type Poller struct {
	probeAddr string
	interval  time.Duration
	timeout   time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	online bool

	listenersMu    sync.Mutex
	nextID         int
	onOnline       map[int]func()
	onOffline      map[int]func()

	stop chan struct{}
	done chan struct{}
}

// New starts a Poller dialing probeAddr (e.g. "1.1.1.1:443") every interval.
// The caller must call Close to stop the background goroutine.
func New(probeAddr string, interval, timeout time.Duration, log zerolog.Logger) *Poller {
	p := &Poller{
		probeAddr: probeAddr,
		interval:  interval,
		timeout:   timeout,
		log:       log.With().Str("component", "netconn").Logger(),
		onOnline:  make(map[int]func()),
		onOffline: make(map[int]func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.online = p.probe()
	go p.run()
	return p
}

func (p *Poller) probe() bool {
	conn, err := net.DialTimeout("tcp", p.probeAddr, p.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (p *Poller) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			wasOnline := p.IsOnline()
			nowOnline := p.probe()

			p.mu.Lock()
			p.online = nowOnline
			p.mu.Unlock()

			if nowOnline && !wasOnline {
				p.log.Info().Msg("connectivity restored")
				p.dispatch(p.onOnline)
			} else if !nowOnline && wasOnline {
				p.log.Warn().Msg("connectivity lost")
				p.dispatch(p.onOffline)
			}
		}
	}
}

func (p *Poller) dispatch(callbacks map[int]func()) {
	p.listenersMu.Lock()
	snapshot := make([]func(), 0, len(callbacks))
	for _, cb := range callbacks {
		snapshot = append(snapshot, cb)
	}
	p.listenersMu.Unlock()

	for _, cb := range snapshot {
		go func(cb func()) {
			defer func() { _ = recover() }()
			cb()
		}(cb)
	}
}

func (p *Poller) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe registers callbacks for online/offline transitions.
func (p *Poller) Subscribe(onOnline, onOffline func()) (unsubscribe func()) {
	p.listenersMu.Lock()
	id := p.nextID
	p.nextID++
	p.onOnline[id] = onOnline
	p.onOffline[id] = onOffline
	p.listenersMu.Unlock()

	return func() {
		p.listenersMu.Lock()
		delete(p.onOnline, id)
		delete(p.onOffline, id)
		p.listenersMu.Unlock()
	}
}

// Close stops the background polling goroutine.
func (p *Poller) Close() {
	close(p.stop)
	<-p.done
}
