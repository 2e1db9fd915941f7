// Package perf is the library entry point for running load tests from Go
// code instead of the stampede command.
//
// # Quick Start
//
//	cfg, err := perf.LoadConfig("exchange.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := perf.RunTest(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary())
//
// # Programmatic Configuration
//
//	cfg := &perf.Config{
//	    Name:     "smoke",
//	    VUs:      5,
//	    Duration: perf.Duration(30 * time.Second),
//	    Settings: perf.Settings{BaseURL: "https://api.example.com"},
//	    Requests: []perf.RequestConfig{
//	        {Name: "health", URL: "/health"},
//	    },
//	}
//
// # Custom Workloads
//
// A Workload replaces the configured request sequence. It is called once per
// iteration by every virtual user; returning an error marks the iteration
// failed without stopping the virtual user.
//
//	runner, _ := perf.NewRunner(cfg, perf.WithWorkload(perf.WorkloadFunc(
//	    func(ctx context.Context, it *perf.Iteration) error {
//	        // drive the target here
//	        return nil
//	    })))
//	result, _ := runner.Run(ctx)
package perf
