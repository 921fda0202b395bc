// Package workflow coordinates publish jobs through the ordered steps:
// create, upload, process, thumbnail, update. One job runs at a time;
// failures halt forward progress at the failing step and retries resume
// there without rewinding completed work.
package workflow
