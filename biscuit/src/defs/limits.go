package defs

/// Kernel-wide size limits. biscuit's own limits package expresses this as
/// compile-time constants (Syslimit_t) rather than a config file; this
/// kernel has no boot-time configuration either, so these stay constants.
const (
	/// USERSTACK is the fixed top of every process's user stack, matching
	/// the MIPS user address space layout (top of the lower 2GB half).
	USERSTACK uint = 0x80000000

	/// STACK_PAGES is the number of pages implicitly reserved below
	/// USERSTACK for the stack; it is never represented as an explicit
	/// region.
	STACK_PAGES = 24

	/// MAX_SWAPFILE_SLOTS bounds the swap bitmap; the swap file never
	/// grows past this many PAGE_SIZE slots.
	MAX_SWAPFILE_SLOTS = 65536

	/// MAX_PATH_LEN bounds a copied-in kernel-space program path.
	MAX_PATH_LEN = 1024

	/// MAX_ARG_LEN bounds a single copied-in exec argument.
	MAX_ARG_LEN = 1024

	/// MAX_ARGC bounds the number of exec arguments.
	MAX_ARGC = 64
)
