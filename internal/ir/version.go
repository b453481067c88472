package ir

// Version constants for records written by the relay.
const (
	// RecordVersion is the schema version of Dispatch and Reply records.
	RecordVersion = "1"

	// RelayVersion is the usb relay version.
	RelayVersion = "0.3.0"
)
