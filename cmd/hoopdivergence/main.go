package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/hoopdivergence/internal/apperrors"
	"github.com/sawpanic/hoopdivergence/internal/gridsearch"
	"github.com/sawpanic/hoopdivergence/internal/model"
	"github.com/sawpanic/hoopdivergence/internal/telemetry"
)

const (
	appName = "hoopdivergence"
	version = "v0.1.0"
)

func main() {
	telemetry.ConfigureLogger()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "NBA win-probability divergence grid-search driver",
		Version: version,
		Long: `hoopdivergence backtests a win-probability-vs-prediction-market
divergence trading strategy across a grid of entry/exit thresholds, with
deterministic train/validation/test splits by game id.`,
	}

	rootCmd.AddCommand(newGridCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run error to the exit code spec.md §6.3 assigns it:
// 0 success, 2 invalid arguments, 3 artifact load failure, 4 no usable
// games, 1 unexpected error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var invalidArgs *apperrors.InvalidArguments
	if errors.As(err, &invalidArgs) {
		return 2
	}
	var gridInvalidArgs *gridsearch.InvalidArgumentsError
	if errors.As(err, &gridInvalidArgs) {
		return 2
	}
	var artifactLoad *model.ErrArtifactLoad
	if errors.As(err, &artifactLoad) {
		return 3
	}
	var noUsableGames *gridsearch.NoUsableGamesError
	if errors.As(err, &noUsableGames) {
		return 4
	}
	return 1
}
