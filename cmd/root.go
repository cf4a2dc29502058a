// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/pv-optimizer/common"
)

var jobFile string
var logCloser io.Closer

func init() {
	cobra.OnInitialize(func() {
		logCloser = common.SetupLogging()
	})

	rootCmd.PersistentFlags().StringVar(&jobFile, "job", "", "Job file (toml) describing prices, bounds and targets")

	// Price history
	bindString("prices.start", "PVOPT_START", "start", "", "First date (YYYY-MM-DD) of the price history to use")
	bindString("prices.end", "PVOPT_END", "end", "", "Last date (YYYY-MM-DD) of the price history to use")

	// Estimator
	bindFloat("optimizer.annualization_factor", "PVOPT_ANNUALIZATION_FACTOR", "annualization-factor", 252, "Periods per year used to annualize returns and covariance")
	bindString("optimizer.return_model", "PVOPT_RETURN_MODEL", "return-model", "mean", "Expected return model, one of: `mean` or `compounded`")

	// Optimizer
	bindFloat("optimizer.risk_free_rate", "PVOPT_RISK_FREE_RATE", "risk-free-rate", 0, "Annual risk-free rate used by the Sharpe ratio")
	bindFloat("optimizer.lower_bound", "PVOPT_LOWER_BOUND", "lower-bound", 0, "Default minimum weight of every asset")
	bindFloat("optimizer.upper_bound", "PVOPT_UPPER_BOUND", "upper-bound", 1, "Default maximum weight of every asset")
	bindFloat("optimizer.clean_tolerance", "PVOPT_CLEAN_TOLERANCE", "clean-tolerance", 1e-4, "Weights smaller than this are set to zero")
	bindInt("optimizer.frontier_points", "PVOPT_FRONTIER_POINTS", "frontier-points", 100, "Number of points on the efficient frontier")
	bindInt("optimizer.workers", "PVOPT_WORKERS", "workers", 0, "Parallel frontier solves, 0 uses every CPU")
	bindString("optimizer.solver", "PVOPT_SOLVER", "solver", "active-set", "Quadratic program solver, one of: `active-set` or `projected-gradient`")

	// Solver
	bindInt("solver.max_iterations", "PVOPT_SOLVER_MAX_ITERATIONS", "solver-max-iterations", 0, "Solver iteration budget, 0 uses the solver default")
	bindFloat("solver.tolerance", "PVOPT_SOLVER_TOLERANCE", "solver-tolerance", 0, "Solver convergence tolerance, 0 uses the solver default")

	// Cache
	bindBool("cache.enabled", "PVOPT_CACHE", "cache", false, "Cache return and risk estimates")
	bindInt("cache.local_size", "PVOPT_CACHE_LOCAL_SIZE", "cache-local-size", 64, "Number of estimates kept in memory")
	bindBool("cache.redis", "PVOPT_CACHE_REDIS", "cache-redis", false, "Share cached estimates through redis")
	bindString("cache.redis_url", "REDIS_URL", "cache-redis-url", "redis://localhost:6379/0", "Redis connection string")
	bindInt("cache.ttl", "PVOPT_CACHE_TTL", "cache-ttl", 86400, "Seconds a cached estimate stays valid in redis")

	// Logging configuration
	bindString("log.level", "PVOPT_LOG_LEVEL", "log-level", "warning", "Logging level")
	bindBool("log.report_caller", "PVOPT_LOG_REPORT_CALLER", "log-report-caller", false, "Log function name that called log statement")
	bindString("log.output", "PVOPT_LOG_OUTPUT", "log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	bindBool("log.pretty", "PVOPT_LOG_PRETTY", "log-pretty", true, "Format log messages for humans")
}

var rootCmd = &cobra.Command{
	Use:     "pv-optimizer",
	Version: common.CurrentVersion.String(),
	Short:   "Mean-variance portfolio optimizer",
	Long: `Compute equal-weight, maximum Sharpe ratio and minimum volatility allocations and the
efficient frontier of a universe of assets from their price history.`,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bindFloat(key, env, flag string, def float64, usage string) {
	viper.BindEnv(key, env)
	rootCmd.PersistentFlags().Float64(flag, def, usage)
	viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func bindInt(key, env, flag string, def int, usage string) {
	viper.BindEnv(key, env)
	rootCmd.PersistentFlags().Int(flag, def, usage)
	viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func bindString(key, env, flag, def, usage string) {
	viper.BindEnv(key, env)
	rootCmd.PersistentFlags().String(flag, def, usage)
	viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func bindBool(key, env, flag string, def bool, usage string) {
	viper.BindEnv(key, env)
	rootCmd.PersistentFlags().Bool(flag, def, usage)
	viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}
