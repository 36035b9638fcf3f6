package defs

/// Pid_t identifies a process; valid PIDs are in [MIN_PID, MAX_PID).
type Pid_t int

/// Tid_t identifies a schedulable thread. A process's main thread shares
/// its Tid_t numbering space with its Pid_t only by convention; the two
/// are allocated independently.
type Tid_t int

const (
	/// MIN_PID is the lowest PID ever handed out; PID 0 is never valid
	/// and PID 1 is reserved for init.
	MIN_PID Pid_t = 1
	/// INIT_PID is the process responsible for reaping orphaned children.
	INIT_PID Pid_t = 1
	/// MAX_PID bounds the PCB table; PIDs are drawn from [MIN_PID, MAX_PID).
	MAX_PID Pid_t = 1024
)
