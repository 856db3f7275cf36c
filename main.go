package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pointlab/depthstream/internal/config"
	"github.com/pointlab/depthstream/internal/framelog"
	"github.com/pointlab/depthstream/internal/gpu"
	"github.com/pointlab/depthstream/internal/recon"
	"github.com/pointlab/depthstream/internal/settings"
	"github.com/pointlab/depthstream/internal/stream"
	"github.com/pointlab/depthstream/internal/stream/network"
	"github.com/pointlab/depthstream/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address for the status server")
	configPath    = flag.String("config", "", "Path to a tuning config JSON file")
	serverAddr    = flag.String("server", "", "Stream server address (skips discovery)")
	dataPort      = flag.Int("data-port", 0, "Stream server data port (default from config)")
	discoveryPort = flag.Int("discovery-port", 0, "UDP discovery port (default from config)")
	dbFile        = flag.String("db", "framelog.db", "Path to the frame log database")
	settingsFile  = flag.String("settings", "settings.db", "Path to the settings store")
	recordPath    = flag.String("record", "", "Record raw frames to this .dslog directory")
	diagnostics   = flag.Bool("diagnostics", false, "Verbose stream diagnostics")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// tickInterval drives the reconstruction dispatcher. The kernel runs
// per frame popped, not per tick, so a fast tick only costs a queue
// check.
const tickInterval = 33 * time.Millisecond

// lastServerKey is the settings key remembering the most recently used
// stream server, surfaced for operators and used as a discovery hint.
const lastServerKey = "last_server_addr"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("depthstream %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	addr := *serverAddr
	if addr == "" {
		addr = cfg.GetServerAddr()
	}
	dport := *dataPort
	if dport == 0 {
		dport = cfg.GetDataPort()
	}
	dcport := *discoveryPort
	if dcport == 0 {
		dcport = cfg.GetDiscoveryPort()
	}
	diag := *diagnostics || cfg.GetDiagnostics()

	store, err := settings.Open(*settingsFile)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}
	defer store.Close()
	if addr == "" {
		if last, ok, _ := store.Get(lastServerKey); ok {
			log.Printf("last stream server was %s (discovery still runs)", last)
		}
	}

	flog, err := framelog.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open frame log: %v", err)
	}
	defer flog.Close()

	source := "discovery"
	if addr != "" {
		source = fmt.Sprintf("tcp://%s:%d", addr, dport)
	}
	session, err := flog.BeginSession(source)
	if err != nil {
		log.Fatalf("failed to begin session: %v", err)
	}
	defer flog.EndSession(session.ID)

	var recorder *framelog.Recorder
	if *recordPath != "" {
		recorder, err = framelog.NewRecorder(*recordPath, source, session.ID)
		if err != nil {
			log.Fatalf("failed to create recorder: %v", err)
		}
		defer recorder.Close()
		log.Printf("recording raw frames to %s", recorder.Path())
	}

	device, kernel := setupCompute()
	defer device.Close()
	defer kernel.Release()

	queue := &stream.LatestQueue{}
	stats := stream.NewStats()
	receiver, err := network.NewReceiver(network.ReceiverConfig{
		ServerAddr:       addr,
		DataPort:         dport,
		DiscoveryPort:    dcport,
		Queue:            queue,
		Stats:            stats,
		PollWindow:       cfg.GetPollWindow(),
		DiscoveryTimeout: cfg.GetDiscoveryTimeout(),
		DiscoveryBackoff: cfg.GetDiscoveryBackoff(),
		Diagnostics:      diag,
		OnRawFrame: func(raw []byte, p *stream.FramePacket) {
			if recorder != nil {
				if err := recorder.Record(raw, time.Now()); err != nil {
					log.Printf("failed to record frame: %v", err)
				}
			}
			if err := flog.RecordFrame(session.ID, p.Width, p.Height, len(p.RGB), len(p.Depth)); err != nil {
				log.Printf("failed to log frame: %v", err)
			}
		},
	})
	if err != nil {
		log.Fatalf("failed to create receiver: %v", err)
	}

	dispatcher, err := recon.NewDispatcher(recon.DispatcherConfig{
		Queue:            queue,
		Device:           device,
		Kernel:           kernel,
		ReadbackInterval: cfg.GetReadbackInterval(),
	})
	if err != nil {
		log.Fatalf("failed to create dispatcher: %v", err)
	}
	defer dispatcher.Release()

	board := &statusBoard{}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background ingestion: discovery, transport, decode, queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receiver.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("receiver terminated: %v", err)
		}
		log.Print("receiver routine terminated")
	}()

	// Tick loop: the single consumer of the queue and sole owner of the
	// resource pool.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				dt := now.Sub(last)
				last = now
				if err := dispatcher.Tick(dt, recon.Identity(), recon.Identity()); err != nil {
					log.Printf("tick failed: %v", err)
				}
				valid, visible := dispatcher.Counts()
				w, h := dispatcher.FrameSize()
				frames, colorFailures, readbacks := dispatcher.Stats()
				board.update(receiver.State(), w, h, valid, visible, frames, colorFailures, readbacks)
			case <-ctx.Done():
				log.Print("tick routine terminated")
				return
			}
		}
	}()

	// Periodic stream rate logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats.LogStats()
				if ep := receiver.CurrentEndpoint(); ep != "" {
					if err := store.Set(lastServerKey, ep); err != nil {
						log.Printf("failed to persist server address: %v", err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP status server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		flog.AttachAdminRoutes(mux)

		apiMux := NewServer(board, receiver, flog).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	receiver.WaitStopped(network.DefaultJoinGrace)
	log.Printf("Graceful shutdown complete")
}

// setupCompute opens the GPU device and compiles the reconstruction
// kernel, falling back to the CPU path when either is unavailable.
func setupCompute() (gpu.Device, gpu.Kernel) {
	dev, err := gpu.NewHALDevice()
	if err != nil {
		log.Printf("gpu unavailable (%v); reconstructing on CPU", err)
		return gpu.NewMemDevice(), recon.NewCPUKernel()
	}
	kernel, err := recon.CompileKernel(dev)
	if err != nil {
		log.Printf("kernel compile failed (%v); reconstructing on CPU", err)
		dev.Close()
		return gpu.NewMemDevice(), recon.NewCPUKernel()
	}
	return dev, kernel
}
