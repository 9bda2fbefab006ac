// Package orchestrator is the process-wide state object of the delegation
// core. It owns the plan store, resource governor, mailbox, worker registry
// and event emitter, and runs plans as dependency-ordered sets of workers.
//
// An Orchestrator is built once with New and torn down with Close. Plans are
// submitted with SubmitPlan and run with Execute, which streams progress
// events and ends in a summary.
package orchestrator
