package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	runner "github.com/ptemplier/elasticsearch-cluster-runner"
	"github.com/ptemplier/elasticsearch-cluster-runner/memengine"
)

func main() {
	var (
		basePath          string
		numOfNode         int
		baseTransportPort int
		baseHTTPPort      int
		maxTransportPort  int
		maxHTTPPort       int
		clusterName       string
		indexStoreType    string
		settingsFile      string
		useLogger         bool
		printOnFailure    bool
		clean             bool
	)

	root := &cobra.Command{
		Use:   "cluster-runner",
		Short: "Start a local multi-node cluster and keep it running until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []runner.Option{
				runner.WithBasePath(basePath),
				runner.WithNumOfNode(numOfNode),
				runner.WithBaseTransportPort(baseTransportPort),
				runner.WithBaseHTTPPort(baseHTTPPort),
				runner.WithMaxTransportPort(maxTransportPort),
				runner.WithMaxHTTPPort(maxHTTPPort),
				runner.WithClusterName(clusterName),
				runner.WithIndexStoreType(indexStoreType),
			}
			if useLogger {
				opts = append(opts,
					runner.WithUseLogger(true),
					runner.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))),
				)
			}
			if printOnFailure {
				opts = append(opts, runner.WithPrintOnFailure(true))
			}
			if settingsFile != "" {
				extra, err := runner.LoadSettings(settingsFile)
				if err != nil {
					return err
				}
				opts = append(opts, runner.WithBuildHook(func(index int, settings runner.Settings) {
					for _, key := range extra.Keys() {
						settings.SetIfAbsent(key, extra.Get(key))
					}
				}))
			}

			r, err := runner.New(memengine.Factory(), opts...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := r.Build(ctx); err != nil {
				r.Close()
				return err
			}
			if _, err := r.EnsureYellow(ctx); err != nil {
				r.Close()
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigs
				r.Close()
			}()

			r.Wait()
			if clean {
				return r.Clean()
			}
			return nil
		},
	}

	root.Flags().StringVar(&basePath, "base-path", "", "base directory for node workspaces (default: a fresh temp dir)")
	root.Flags().IntVar(&numOfNode, "num-of-node", runner.DefaultNumOfNode, "number of nodes to start")
	root.Flags().IntVar(&baseTransportPort, "base-transport-port", runner.DefaultBaseTransportPort, "first transport port to try")
	root.Flags().IntVar(&baseHTTPPort, "base-http-port", runner.DefaultBaseHTTPPort, "first http port to try")
	root.Flags().IntVar(&maxTransportPort, "max-transport-port", runner.DefaultMaxTransportPort, "highest transport port to try (negative disables probing)")
	root.Flags().IntVar(&maxHTTPPort, "max-http-port", runner.DefaultMaxHTTPPort, "highest http port to try (negative disables probing)")
	root.Flags().StringVar(&clusterName, "cluster-name", runner.DefaultClusterName, "cluster name")
	root.Flags().StringVar(&indexStoreType, "index-store-type", runner.DefaultIndexStoreType, "index store type")
	root.Flags().StringVar(&settingsFile, "settings", "", "YAML file with extra node settings")
	root.Flags().BoolVar(&useLogger, "use-logger", false, "log progress through the structured logger instead of stdout")
	root.Flags().BoolVar(&printOnFailure, "print-on-failure", false, "print operation failures instead of returning errors")
	root.Flags().BoolVar(&clean, "clean", false, "delete the workspace after shutdown")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
