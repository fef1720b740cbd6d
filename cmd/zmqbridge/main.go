// Command zmqbridge runs demo and declarative-topology modes of the
// zmqbridge MQ/channel bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hhenrich/zmqbridge/internal/config"
	"github.com/hhenrich/zmqbridge/internal/engine"
	"github.com/hhenrich/zmqbridge/internal/monitor"
	"github.com/hhenrich/zmqbridge/internal/socket"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version information")
)

var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("zmqbridge v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	switch args[0] {
	case "pingpong":
		runPingPong(ctx)
	case "pubsub":
		runPubSub(ctx)
	case "proxy":
		runProxy(ctx)
	case "serve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: serve requires a topology file path")
			os.Exit(1)
		}
		runServe(ctx, args[1])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("zmqbridge - a concurrency-safe MQ/channel bridge")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  zmqbridge pingpong                Run a REQ/REP demo over inproc")
	fmt.Println("  zmqbridge pubsub                  Run a PUB/SUB fan-out demo")
	fmt.Println("  zmqbridge proxy                   Run an XSUB/XPUB proxy demo")
	fmt.Println("  zmqbridge serve <topology.json>   Run a declarative topology with the monitor server")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h         Show this help message")
	fmt.Println("  -version   Show version information")
}

func runPingPong(ctx context.Context) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	rep, err := socket.New(socket.Rep, socket.WithContext(bridge), socket.WithBind("inproc://zmqbridge-pingpong"))
	if err != nil {
		log.Fatalf("rep: %v", err)
	}
	req, err := socket.New(socket.Req, socket.WithContext(bridge), socket.WithConnect("inproc://zmqbridge-pingpong"))
	if err != nil {
		log.Fatalf("req: %v", err)
	}

	go func() {
		for {
			msg := socket.Recv(rep)
			if msg == nil {
				return
			}
			socket.Send(rep, msg)
		}
	}()

	for i := 0; i < 1000; i++ {
		socket.Send(req, fmt.Sprintf("%d", i))
		msg := socket.Recv(req)
		if msg == nil {
			break
		}
		if i%200 == 0 {
			fmt.Printf("ping-pong: %s\n", msg[0])
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	fmt.Println("ping-pong: done")
}

func runPubSub(ctx context.Context) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	pub, err := socket.New(socket.Pub, socket.WithContext(bridge), socket.WithBind("inproc://zmqbridge-pubsub"))
	if err != nil {
		log.Fatalf("pub: %v", err)
	}

	const nsub = 10
	subs := make([]*socket.Socket, nsub)
	for i := range subs {
		topic := fmt.Sprintf("%d", i)
		sub, err := socket.New(socket.Sub,
			socket.WithContext(bridge),
			socket.WithConnect("inproc://zmqbridge-pubsub"),
			socket.WithSubscribe(topic),
		)
		if err != nil {
			log.Fatalf("sub %d: %v", i, err)
		}
		subs[i] = sub
	}

	time.Sleep(100 * time.Millisecond)

	for i := 0; i < nsub; i++ {
		topic := fmt.Sprintf("%d", i)
		socket.Send(pub, [][]byte{[]byte(topic), []byte("hello")})
	}

	for i, sub := range subs {
		msg := socket.Recv(sub)
		if msg == nil {
			continue
		}
		fmt.Printf("sub %d received topic=%s\n", i, msg[0])
	}
	_ = ctx
}

func runProxy(ctx context.Context) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	xsub, err := socket.New(socket.XSub, socket.WithContext(bridge), socket.WithBind("inproc://zmqbridge-xsub"))
	if err != nil {
		log.Fatalf("xsub: %v", err)
	}
	xpub, err := socket.New(socket.XPub, socket.WithContext(bridge), socket.WithBind("inproc://zmqbridge-xpub"))
	if err != nil {
		log.Fatalf("xpub: %v", err)
	}

	stop := socket.Proxy(xsub, xpub)
	defer stop()

	fmt.Println("proxy: xsub<->xpub running, press Ctrl+C to stop")
	<-ctx.Done()
}

func runServe(ctx context.Context, path string) {
	bridge := engine.NewContext()
	bridge.Start()
	defer bridge.Close()

	mon := monitor.New(bridge)
	bridge.SetHook(mon.Publish)

	mgr := config.NewManager(bridge, path)
	if err := mgr.Apply(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := mgr.Watch(); err != nil {
		log.Printf("config: hot reload disabled: %v", err)
	}
	defer mgr.Close()

	mux := http.NewServeMux()
	mon.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":8787", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor server: %v", err)
		}
	}()
	fmt.Println("zmqbridge serving; monitor at http://127.0.0.1:8787")

	<-ctx.Done()
	_ = srv.Close()
}
