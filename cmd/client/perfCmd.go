package client

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/pstore/cmd/util"
	"github.com/ValentinKolb/pstore/lib/store"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for pstore servers",
		Long:    "Registers a set of test users (or reuses them) and measures the request latency of SET, GET and ALL. The test users cannot be removed afterwards.",
		Args:    cobra.NoArgs,
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfUserPrefix       = "__perf"
	perfPassword         = []byte("__perf-password")
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfUserSpread       = 10
	perfSkip             = make([]string, 0)
	perfPercentiles      = []float64{0.5, 0.95, 0.99}
)

// perfResult is the outcome of one benchmark
type perfResult struct {
	bench testing.BenchmarkResult
	timer metrics.Timer // latency of single requests
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB, at most 1024)"))
	key = "users"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("How many different test users to use"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfUserSpread = viper.GetInt("users")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfLargeValueSizeKB*1024 > common.LenContent {
		return fmt.Errorf("large-value-size must be at most %d KB", common.LenContent/1024)
	}
	if perfUserSpread < 1 {
		return fmt.Errorf("at least one test user is required")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for pstore servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// The key is fetched once instead of by the first parallel request
	if _, err := rpcClient.FetchKey(); err != nil {
		return fmt.Errorf("failed to fetch server key: %w", err)
	}

	users, err := prepareUsers()
	if err != nil {
		return err
	}

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	results := make(map[string]perfResult)

	benchmark := func(name string, setup func(), op func(counter int) error) {
		timer := metrics.GetOrRegisterTimer(name, registry)
		bench := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			if setup != nil {
				setup()
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := op(counter); err != nil {
						log.Printf("(%s) - error: %v\n", name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[name] = perfResult{bench: bench, timer: timer}
		printResult(name, results[name])
	}

	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	setAll := func() {
		for _, u := range users {
			if err := rpcClient.SetContent(u, perfPassword, value); err != nil {
				log.Printf("(setup) - error setting content: %v\n", err)
			}
		}
	}

	benchmark("set", nil, func(i int) error {
		u := users[i%len(users)]
		return rpcClient.SetContent(u, perfPassword, value)
	})

	benchmark("set-large", nil, func(i int) error {
		u := users[i%len(users)]
		return rpcClient.SetContent(u, perfPassword, largeValue)
	})

	benchmark("get", setAll, func(i int) error {
		u := users[i%len(users)]
		_, err := rpcClient.GetContent(u, perfPassword, u)
		return err
	})

	benchmark("get-other", setAll, func(i int) error {
		u := users[i%len(users)]
		target := users[(i+1)%len(users)]
		_, err := rpcClient.GetContent(u, perfPassword, target)
		return err
	})

	benchmark("all", nil, func(i int) error {
		_, err := rpcClient.ListUsers(users[i%len(users)], perfPassword)
		return err
	})

	benchmark("mixed", setAll, func(i int) error {
		u := users[i%len(users)]
		var err error
		switch i % 3 {
		case 0: // set
			err = rpcClient.SetContent(u, perfPassword, value)
		case 1: // get
			_, err = rpcClient.GetContent(u, perfPassword, u)
		case 2: // all
			_, err = rpcClient.ListUsers(u, perfPassword)
		}
		return err
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// prepareUsers registers the test users, existing ones are reused
func prepareUsers() ([][]byte, error) {
	users := make([][]byte, perfUserSpread)
	for i := range users {
		users[i] = []byte(fmt.Sprintf("%s-%d", perfUserPrefix, i))

		err := rpcClient.Register(users[i], perfPassword)
		if err != nil && !errors.Is(err, store.ErrUserExists) {
			return nil, fmt.Errorf("failed to register test user %s: %w", users[i], err)
		}
	}
	return users, nil
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	snapshot := result.timer.Snapshot()
	ps := snapshot.Percentiles(perfPercentiles)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Requests", "P50Ns", "P95Ns", "P99Ns", "MaxNs",
		"Endpoint", "TimeoutSec", "RetryCount", "Transport",
		"Threads", "LargeValueSizeKB", "Users",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		snapshot := result.timer.Snapshot()
		ps := snapshot.Percentiles(perfPercentiles)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.FormatInt(snapshot.Count(), 10),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(snapshot.Max(), 10),
			config.Transport.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfUserSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
