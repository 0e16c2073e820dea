package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup/logging"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/worker/learning"
	"github.com/urfave/cli/v3"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// LearningWorker adjusts moderation thresholds from feedback.
	LearningWorker = "learning"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start a CommunityClara worker",
		Commands: []*cli.Command{
			{
				Name:  LearningWorker,
				Usage: "Start the adaptive learning worker",
				Action: func(ctx context.Context, _ *cli.Command) error {
					runWorker(ctx, LearningWorker)
					return nil
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorker starts a single worker and blocks until interrupted.
func runWorker(ctx context.Context, workerType string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := setup.InitializeApp(ctx, WorkerLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup()

	workerLogger := logging.GetWorkerLogger(
		fmt.Sprintf("%s_worker", workerType),
		WorkerLogDir,
		app.Config.Common.Debug.LogLevel,
	)

	go func() {
		sc := make(chan os.Signal, 1)
		signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
		<-sc
		cancel()
	}()

	w := learning.New(app, workerLogger)

	log.Printf("Started %s worker", workerType)
	w.Start(ctx)
	log.Println("Worker has finished. Exiting.")
}
