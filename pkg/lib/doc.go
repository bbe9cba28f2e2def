// Package lib provides a Go SDK for running backtesting jobs on the compute
// backend programmatically.
//
// This package allows applications to submit jobs, follow their progress and
// read their normalized results without shelling out to the btorch CLI
// binary.
//
// # Quick Start
//
// Create a client, submit a job and wait for its result:
//
//	client, err := lib.New(ctx, lib.Config{
//	    APIURL: "http://localhost:8000/api",
//	    WSURL:  "ws://localhost:8000/ws",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	job, err := client.Submit(ctx, lib.JobModeSingleRun, lib.JobParams{
//	    Backtest: lib.BacktestParams{Symbol: "BTC/USDT", Timeframe: "1h", InitialCash: 10000},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer job.Close()
//
//	state, err := job.Wait(ctx)
//	fmt.Println(state.Phase, state.Result.SingleRun.Metrics.ProfitPercent)
//
// # Jobs
//
// Every [Job] is followed by its own orchestrator, so several jobs can run at
// the same time. A job merges the backend push notifications and the periodic
// status queries into a single [TaskState]. Progress never goes backwards and
// once a job is completed, failed or cancelled its state doesn't change.
//
// # Cancellation
//
// [Job.Cancel] asks the backend to revoke the job. The job is cancelled only
// when the backend reports it: a job that finishes before the revoke keeps its
// result.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: The job does not exist.
//   - [ErrNotValid]: Invalid job parameters.
//   - [ErrSubmission]: The job could not be submitted.
//   - [ErrTransport]: The backend could not be reached.
//
// # Testing
//
// Use [BackendFake] to run jobs against a simulated backend:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    Backend:        lib.BackendFake,
//	    DisableHistory: true,
//	})
//
// # Thread Safety
//
// A [Client] and its jobs are safe for concurrent use from multiple goroutines.
package lib
