// Command vidpress is the operator CLI for the sponsor-video publish
// pipeline. It queues publish jobs, runs them inline with --watch, and
// inspects or repairs the queue the daemon works through.
package main
