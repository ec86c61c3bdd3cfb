// Package sram provides the raw source boundary of PUF enrollment: ways to
// obtain the fixed-size power-up image of the device's uninitialized SRAM
// region.
//
// Three sources are provided: FileSource replays captured SRAM dumps taken
// from real hardware, StaticSource wraps a sample carried in a boot report,
// and DeviceModel simulates a device's SRAM cell biases for testing and
// end-to-end enrollment runs without hardware.
package sram
