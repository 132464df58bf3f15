// Command loginwatch probes login endpoints and alerts operators when the
// outcome changes. It is meant to be run periodically by cron or a systemd
// timer; each invocation performs one pass over the configured endpoints.
package main

func main() {
	Execute()
}
