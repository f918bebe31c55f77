// Spins up the storage components of a strata node that are self-contained today: the
// multi-group raft log store, backed by local disk.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nobletooth/strata/pkg/raftlog"
	"github.com/nobletooth/strata/pkg/utils"
)

var (
	printVersion = flag.Bool("print_version", false, "Print the version and exit.")
	raftLogDir   = flag.String("raft_log_dir", "./data/raftlog", "Root directory for the raft log segments.")
)

func main() {
	flag.Parse()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Strata build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)

	go func() { // Listen for OS interrupts in the background.
		select {
		case sig := <-signals:
			slog.Info("Received termination signal, cancelling node context.", "signal", sig)
			cancel()
		}
	}()

	logStore, err := raftlog.Open(ctx, raftlog.Options{LogDirPath: *raftLogDir})
	if err != nil {
		slog.Error("Failed to open raft log store.", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := logStore.Close(); err != nil {
			slog.Error("Failed to close raft log store.", "err", err)
		}
	}()

	slog.Info("Strata storage node ready.", "raft_log_dir", *raftLogDir)

	<-ctx.Done()
	slog.Info("Strata storage node stopped.")
}
