// Command aprsis-emulator is a small APRS-IS server for testing wxrelay
// without touching the real network. It answers logins, acknowledges
// filters, passes packets from verified clients on to every other client
// and sends periodic keepalive comments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/internal/log"
)

const software = "wxrelay-emulator 1.0"

type emulator struct {
	gnet.BuiltinEventEngine

	name      string
	keepalive time.Duration
	logger    *zap.SugaredLogger

	eng   gnet.Engine
	mu    sync.Mutex
	conns map[gnet.Conn]*session
}

func (e *emulator) OnBoot(eng gnet.Engine) gnet.Action {
	e.eng = eng
	e.logger.Infof("APRS-IS emulator %s ready", e.name)
	return gnet.None
}

func (e *emulator) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	e.mu.Lock()
	e.conns[c] = newSession(e.name)
	e.mu.Unlock()

	e.logger.Infof("client connected from %s", c.RemoteAddr())
	return []byte("# " + software + "\r\n"), gnet.None
}

func (e *emulator) OnClose(c gnet.Conn, err error) gnet.Action {
	e.mu.Lock()
	s := e.conns[c]
	delete(e.conns, c)
	e.mu.Unlock()

	call := "unknown"
	if s != nil && s.callsign != "" {
		call = s.callsign
	}
	if err != nil {
		e.logger.Infof("client %s (%s) disconnected: %v", call, c.RemoteAddr(), err)
	} else {
		e.logger.Infof("client %s (%s) disconnected", call, c.RemoteAddr())
	}
	return gnet.None
}

func (e *emulator) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Next(-1)
	if err != nil {
		e.logger.Warnf("read from %s failed: %v", c.RemoteAddr(), err)
		return gnet.Close
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.conns[c]
	if s == nil {
		return gnet.Close
	}
	replies, forward := s.feed(buf)

	for _, r := range replies {
		e.logger.Debugf("%s << %s", c.RemoteAddr(), r)
		if _, err := c.Write([]byte(r + "\r\n")); err != nil {
			return gnet.Close
		}
	}
	for _, line := range forward {
		e.logger.Infof("packet: %s", line)
		e.broadcastLocked(c, line)
	}
	return gnet.None
}

func (e *emulator) OnTick() (time.Duration, gnet.Action) {
	line := fmt.Sprintf("# %s %s %s", software, time.Now().UTC().Format("02 Jan 2006 15:04:05 GMT"), e.name)

	e.mu.Lock()
	e.broadcastLocked(nil, line)
	e.mu.Unlock()

	return e.keepalive, gnet.None
}

// broadcastLocked sends line to every logged-in client except from.
func (e *emulator) broadcastLocked(from gnet.Conn, line string) {
	data := []byte(line + "\r\n")
	for c, s := range e.conns {
		if c == from || (!s.loggedIn && !strings.HasPrefix(line, "#")) {
			continue
		}
		if err := c.AsyncWrite(data, nil); err != nil {
			e.logger.Debugf("write to %s failed: %v", c.RemoteAddr(), err)
		}
	}
}

func main() {
	addr := flag.String("listen", "tcp://127.0.0.1:14580", "Listen address")
	name := flag.String("name", "WXRELAY-EMU", "Server name reported in logresp and keepalives")
	keepalive := flag.Duration("keepalive", 20*time.Second, "Interval between keepalive comments")
	multicore := flag.Bool("multicore", false, "Use one event loop per CPU")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	emu := &emulator{
		name:      *name,
		keepalive: *keepalive,
		logger:    log.GetSugaredLogger(),
		conns:     make(map[gnet.Conn]*session),
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		log.Info("shutdown signal received, stopping emulator...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := emu.eng.Stop(ctx); err != nil {
			log.Errorf("emulator stop: %v", err)
		}
	}()

	log.Infof("listening on %s", *addr)
	if err := gnet.Run(emu, *addr, gnet.WithMulticore(*multicore), gnet.WithTicker(true)); err != nil {
		log.Fatalf("emulator failed: %v", err)
	}
}
