// Command liminal is the interactive story engine CLI: seed a session, answer
// binary choices, and let the provider chain narrate.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/didgugoluke/liminal-transit/internal/config"
	"github.com/didgugoluke/liminal-transit/internal/llm"
	. "github.com/didgugoluke/liminal-transit/internal/logging"
	"github.com/didgugoluke/liminal-transit/internal/metrics"
	"github.com/didgugoluke/liminal-transit/internal/session"
	"github.com/didgugoluke/liminal-transit/internal/store"
	"github.com/didgugoluke/liminal-transit/internal/story"
)

const version = "0.1.0"

var cli struct {
	Config   string           `help:"Config file path." default:"~/.liminal/config.json" type:"path"`
	LogLevel string           `help:"Log level." default:"info" enum:"trace,debug,info,warn,error"`
	Seed     string           `arg:"" optional:"" help:"Story seed for a new session."`
	List     bool             `help:"List stored sessions and exit."`
	Version  kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("liminal"),
		kong.Description("Seed-anchored interactive storytelling with provider failover."),
		kong.Vars{"version": version},
	)

	Init(&Config{
		Level:      ParseLevel(cli.LogLevel),
		ShowCaller: false,
	})
	L_info("liminal %s starting", version)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}

	st, err := store.NewStore(cfg.Storage)
	if err != nil {
		L_fatal("failed to open store: %v", err)
	}
	defer st.Close()

	if cli.List {
		kctx.FatalIfErrorf(listSessions(st))
		return
	}

	descriptors, err := cfg.BuildProviders()
	if err != nil {
		L_fatal("failed to build providers: %v", err)
	}
	router := llm.NewRouter(descriptors, llm.RouterConfig{
		AttemptTimeout: time.Duration(cfg.Router.AttemptTimeoutSeconds) * time.Second,
	})
	recorder := metrics.NewAttemptRecorder(descriptors)

	seed := cli.Seed
	reader := bufio.NewReader(os.Stdin)
	if seed == "" {
		fmt.Print("Enter a story seed: ")
		line, _ := reader.ReadString('\n')
		seed = strings.TrimSpace(line)
	}

	var coordinator *session.Coordinator
	coordinator = session.NewCoordinator(router, session.Config{
		Prompt: story.PromptConfig{
			KeepRecentBeats: cfg.Story.KeepRecentBeats,
			TokenBudget:     cfg.Story.PromptTokenBudget,
		},
	}, session.Hooks{
		OnSessionUpdated: func(sctx story.StoryContext) {
			rec := &store.StoredSession{
				ID:      coordinator.ID(),
				Seed:    sctx.Seed,
				State:   string(coordinator.State()),
				Context: sctx,
			}
			if err := st.SaveSession(context.Background(), rec); err != nil {
				L_warn("persist failed, continuing", "error", err)
			}
		},
		OnAttempts: recorder.Record,
	})

	if err := coordinator.Start(seed); err != nil {
		var verr *story.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "bad seed: %v\n", verr)
			os.Exit(1)
		}
		L_fatal("failed to start session: %v", err)
	}

	play(coordinator, reader)
}

// play runs the interactive loop until the user quits or interrupts.
func play(coordinator *session.Coordinator, reader *bufio.Reader) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nSession %s begins. Answer Y or N (q to finish).\n", coordinator.ID())
	fmt.Println("\nThe story is waiting to start. Step in? (Y/N)")

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input := strings.TrimSpace(line)

		if strings.EqualFold(input, "q") || strings.EqualFold(input, "quit") {
			break
		}
		choice, ok := story.ParseChoice(input)
		if !ok {
			fmt.Println("Please answer Y or N (q to finish).")
			continue
		}

		beat, err := coordinator.Choose(ctx, choice)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted; nothing was added to the story.")
				break
			}
			var gerr *llm.GenerationError
			if errors.As(err, &gerr) {
				fmt.Printf("Every storyteller is silent right now (%d attempts). Try again.\n", len(gerr.Attempts))
				continue
			}
			L_error("choose failed", "error", err)
			continue
		}

		fmt.Printf("\n%s\n", beat.NarrativeText)
	}

	if err := coordinator.Complete(); err == nil {
		fmt.Printf("\nThe story rests after %d beats.\n", len(coordinator.Context().History))
	}
}

// listSessions prints stored sessions, newest first.
func listSessions(st store.Store) error {
	infos, err := st.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  seed=%s  state=%s  beats=%d  updated=%s\n",
			info.ID, info.Seed, info.State, info.BeatCount,
			info.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
