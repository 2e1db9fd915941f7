// Package setup prepares and cleans up a load test run.
//
// A Coordinator runs exactly once before the first virtual user starts:
//
//  1. optionally waits for the target to answer a readiness check
//  2. reads identities from a credential source and logs each one in,
//     sequentially and paced, keeping the tokens in source order
//  3. executes setup requests and SetupFunc hooks
//
// The result is an immutable *loadtest.SharedData handed to every virtual
// user. A failing item is logged and excluded; setup itself never fails the
// run.
//
// Teardown runs exactly once after the last virtual user stopped and only
// logs its failures.
package setup
