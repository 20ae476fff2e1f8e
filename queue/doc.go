// Package queue provides the per-run step queues driving the agent
// loop: the ActionQueue of pending steps and the History log of
// executed steps.
//
// The ActionQueue supports tail-push for planned order and head-push
// for repair steps, which must execute ahead of any originally-planned
// remainder. Each run has exactly one consumer (its orchestrator), so
// no two pops for the same run ever return the same step.
//
// The History log is strictly append-only: one entry per processed
// step, used for replay/audit and as the bounded recent-context window
// handed to the healer.
package queue
