// Package nodes registers the engine's fixed node family: each file
// defines one node kind and registers its factory with
// workflow.RegisterNodeType from an init() function. Importing this
// package for its side effects (a blank import in cmd/loom) is what
// makes the kinds available to the engine.
//
//   - manual_trigger  — fires a run on demand
//   - schedule_trigger — fires a run on a cron schedule or fixed interval
//   - http_request    — issues a single HTTP call
//   - transform       — uppercase or extract_field against an upstream value
//   - send_email      — sends a templated message via Gmail SMTP
package nodes
