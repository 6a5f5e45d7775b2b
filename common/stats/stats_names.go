package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Dispatcher metrics **************************/
	/*
		jobs read from the work queue in a dispatch pass
	*/
	DispatchJobsCounter = "jobs"

	/*
		jobs skipped because their idempotency marker already exists
	*/
	DispatchSkippedCounter = "skipped"

	/*
		jobs handed to a machine
	*/
	DispatchAssignedCounter = "assigned"

	/*
		jobs that found no live machine
	*/
	DispatchNoMachineCounter = "noMachine"

	/*
		hand-offs that failed before the command reached the machine
	*/
	DispatchHandoffErrCounter = "handoffErr"

	/*
		time to probe the candidates of one job and hand it off
	*/
	DispatchJobLatency_ms = "jobLatency_ms"

	/************************* Probe metrics **************************/
	ProbeAliveCounter   = "alive"
	ProbeDeadCounter    = "dead"
	ProbeTimeoutCounter = "timeout"
	ProbeLatency_ms     = "latency_ms"

	/************************* Killer metrics **************************/
	/*
		machines sent a kill command
	*/
	KillSentCounter = "sent"

	/*
		machines skipped because they were excluded
	*/
	KillExcludedCounter = "excluded"

	/*
		kill commands that failed to reach the machine
	*/
	KillErrCounter = "err"

	/************************* Exec client metrics **************************/
	ExecRunCounter    = "run"
	ExecFailedCounter = "failed"
	ExecDoneCounter   = "doneAlready"
)
