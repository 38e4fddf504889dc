package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"hark/bridge"
	"hark/bus"
	"hark/capture"
	"hark/hotkey"
	"hark/log"
	"hark/page"
	"hark/state"
	"hark/store"
	"hark/transcriber"
	"hark/tray"
)

var version = "dev"

var shutdownOnce sync.Once

func run() {
	listenAddr := flag.String("listen", "127.0.0.1:8787", "bridge listen address for the browser companion")
	statePath := flag.String("statepath", "", "transcription flag store directory (default: user config dir)")
	logPath := flag.String("logpath", "", "log directory (default: platform log dir)")
	threshold := flag.Float64("threshold", capture.DefaultThreshold, "audio activity threshold (mean byte magnitude)")
	poll := flag.Duration("poll", 500*time.Millisecond, "DOM sampling interval")
	debounce := flag.Duration("debounce", 150*time.Millisecond, "DOM mutation debounce window")
	settle := flag.Duration("settle", time.Second, "settle delay after in-tab navigation")
	stale := flag.Duration("stale", 30*time.Second, "age after which tab state is considered dead")
	sweepEvery := flag.Duration("sweep", 10*time.Second, "staleness sweep interval")
	domain := flag.String("domain", "meet.google.com", "meeting domain")
	language := flag.String("language", "", "transcription language code (empty = engine default)")
	useTUI := flag.Bool("tui", false, "run the terminal status popup")
	useTray := flag.Bool("tray", true, "show the menu bar indicator")
	useHotkey := flag.Bool("hotkey", true, "register the global Ctrl+Shift+T transcription toggle")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("hark", version)
		return
	}

	dir, err := log.ResolveDir(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "log dir:", err)
		os.Exit(1)
	}
	log.SetDir(dir)
	if err := log.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "log init:", err)
		os.Exit(1)
	}
	log.Infof("hark %s starting", version)

	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey == "" {
		log.Warn("DEEPGRAM_API_KEY not set; transcription will fail until it is")
	}

	b := bus.New()

	flagDir := *statePath
	if flagDir == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "state dir:", err)
			os.Exit(1)
		}
		flagDir = filepath.Join(cfgDir, "hark", "state")
	}
	if err := os.MkdirAll(flagDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "state dir:", err)
		os.Exit(1)
	}
	flags, err := store.Open(flagDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state store:", err)
		os.Exit(1)
	}

	dialer := transcriber.NewDeepgram(apiKey)
	dialer.SetLanguage(*language)

	monitor := capture.NewMonitor(b, capture.NewContext, dialer, *threshold)
	manager := page.NewManager(b, page.Config{
		PollInterval:   *poll,
		DebounceWindow: *debounce,
		SettleDelay:    *settle,
	})
	bridgeSrv := bridge.NewServer(b)

	var ind state.Indicator = state.NopIndicator{}
	if *useTray {
		ind = tray.NewTabIndicator()
	}

	coord := state.NewCoordinator(b, state.NewStateStore(), ind, bridgeSrv, flags, state.Config{
		StaleAfter:    *stale,
		SweepEvery:    *sweepEvery,
		MeetingDomain: *domain,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)
	go manager.Run(ctx)
	go coord.Run(ctx)

	httpSrv := &http.Server{Addr: *listenAddr, Handler: bridgeSrv}
	go func() {
		log.Infof("bridge listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("bridge server: %v", err)
			gracefulShutdown(cancel, httpSrv, bridgeSrv, flags)
		}
	}()

	// Flip the persisted preference for whichever tab is focused and let
	// the coordinator and monitor take it from there.
	toggleActive := func() {
		tab := coord.ActiveTab()
		if tab == 0 {
			log.Warn("transcription toggle with no active tab")
			return
		}
		enabled, err := flags.Get(tab)
		if err != nil {
			log.Errorf("transcription flag read failed for tab %d: %v", tab, err)
			return
		}
		b.Publish(bus.ToggleTranscriptionMsg{TabID: tab, Enabled: !enabled})
	}

	if *useHotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey unavailable: %v", err)
		} else {
			go func() {
				for range hk.Keydown() {
					toggleActive()
				}
			}()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		gracefulShutdown(cancel, httpSrv, bridgeSrv, flags)
	}()

	if *useTray {
		tray.OnToggleTranscribe(func(on bool) {
			tab := coord.ActiveTab()
			if tab == 0 {
				log.Warn("transcription toggle with no active tab")
				return
			}
			b.Publish(bus.ToggleTranscriptionMsg{TabID: tab, Enabled: on})
		})
		tray.OnQuit(func() {
			gracefulShutdown(cancel, httpSrv, bridgeSrv, flags)
		})
		go followToggles(ctx, b, coord)
	}

	if *useTUI {
		tuiProgram = NewTUIProgram()
		tuiToggleFn = toggleActive
		go forwardToTUI(ctx, b, coord)
		if *useTray {
			go func() {
				<-tray.Init()
			}()
		}
		if _, err := tuiProgram.Run(); err != nil {
			log.Errorf("tui: %v", err)
		}
		gracefulShutdown(cancel, httpSrv, bridgeSrv, flags)
		return
	}

	if *useTray {
		<-tray.Init()
		gracefulShutdown(cancel, httpSrv, bridgeSrv, flags)
		return
	}

	// Headless: wait for a signal.
	select {}
}

func gracefulShutdown(cancel context.CancelFunc, httpSrv *http.Server, bridgeSrv *bridge.Server, flags *store.FlagStore) {
	shutdownOnce.Do(func() {
		log.Info("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		httpSrv.Shutdown(shutdownCtx)
		done()
		bridgeSrv.Shutdown()
		flags.Close()
		log.Close()
		tray.Quit()
		if tuiProgram != nil {
			tuiProgram.Quit()
		}
		os.Exit(0)
	})
}

// followToggles keeps the tray checkbox in sync with toggles that come
// from the TUI, the hotkey, or the companion.
func followToggles(ctx context.Context, b *bus.Bus, coord *state.Coordinator) {
	sub := b.Subscribe(16, bus.ToggleTranscription)
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			tog := msg.(bus.ToggleTranscriptionMsg)
			if tog.TabID == coord.ActiveTab() {
				tray.SetTranscribing(tog.Enabled)
			}
		}
	}
}

// forwardToTUI seeds the bubbletea program with the current state of the
// active tab, then relays bus pushes into it.
func forwardToTUI(ctx context.Context, b *bus.Bus, coord *state.Coordinator) {
	sub := b.Subscribe(64, bus.PopupUpdateStatus, bus.PopupTranscriptionUpdate, bus.TabActivated, bus.ToggleTranscription)
	defer b.Unsubscribe(sub)

	if tab := coord.ActiveTab(); tab != 0 {
		audio, transcript, _ := coord.Query(tab)
		tuiProgram.Send(ActiveTabMsg{TabID: tab})
		tuiProgram.Send(StatusUpdateMsg{
			TabID:       tab,
			HasAudio:    audio.HasAudio,
			IsSpeaking:  audio.IsSpeaking,
			HasTabAudio: audio.HasTabAudio,
			AudioLevel:  audio.AudioLevel,
		})
		tuiProgram.Send(TranscriptUpdateMsg{
			TabID:   tab,
			Interim: transcript.Interim,
			Recent:  transcript.Recent,
		})
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if tuiProgram == nil {
				continue
			}
			switch v := msg.(type) {
			case bus.PopupStatusMsg:
				tuiProgram.Send(StatusUpdateMsg{
					TabID:       v.TabID,
					HasAudio:    v.HasAudio,
					IsSpeaking:  v.IsSpeaking,
					HasTabAudio: v.HasTabAudio,
					AudioLevel:  v.AudioLevel,
				})
			case bus.PopupTranscriptMsg:
				tuiProgram.Send(TranscriptUpdateMsg{
					TabID:   v.TabID,
					Interim: v.Interim,
					Recent:  v.Recent,
				})
			case bus.TabActivatedMsg:
				tuiProgram.Send(ActiveTabMsg{TabID: v.TabID})
			case bus.ToggleTranscriptionMsg:
				tuiProgram.Send(TranscribingMsg{On: v.Enabled})
			}
		}
	}
}
