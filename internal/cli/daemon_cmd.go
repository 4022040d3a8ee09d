package cli

import (
	"github.com/spf13/cobra"

	"github.com/AlanyTan/sweteam/internal/config"
	"github.com/AlanyTan/sweteam/internal/daemon"
)

func newDaemonCmd() *cobra.Command {
	var (
		port        int
		intervalSec float64
		dev         bool
		pprofAddr   string
		runtimeKind string
		apiBase     string
		enableOtel  bool
	)

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			return daemon.StartForeground(cmd.Context(), daemon.StartOptions{
				Home:        home,
				Port:        port,
				IntervalSec: intervalSec,
				Dev:         dev,
				PprofAddr:   pprofAddr,
				Runtime:     runtimeKind,
				APIBase:     apiBase,
				EnableOtel:  enableOtel,
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", 3548, "Port for the HTTP API")
	cmd.Flags().Float64Var(&intervalSec, "interval", 5.0, "Orchestration pass interval (seconds)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable dev mode")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&runtimeKind, "runtime", "", "Reasoning runtime: stub or http")
	cmd.Flags().StringVar(&apiBase, "api-base", "", "Reasoning-service base URL for runtime=http")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics")

	return cmd
}
