package errors

type ExitCode int

// Values follow sysexits.h where one fits.
const (
	GenericFailureExitCode ExitCode = 1

	UsageExitCode ExitCode = 64

	NoMachineAvailableExitCode ExitCode = 69

	ConfigErrorExitCode ExitCode = 78
)
