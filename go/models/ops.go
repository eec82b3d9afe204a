package models

// Ops is the board-specific half of a remote processor: power and clock
// sequencing supplied at registration. Implementations carry their own
// board state.
type Ops interface {
	// Start powers the device on and boots it at bootAddr. Boards that
	// hardwire the boot vector ignore the address.
	Start(bootAddr uint64) error
	// Stop powers the device off.
	Stop() error
}
