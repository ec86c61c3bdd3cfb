// Package enrollhandler processes HTTP boot reports from device agents.
//
// A device agent posts one report per boot with the hardware reset cause
// and the base64-encoded power-up SRAM image; the handler runs one step of
// the enrollment state machine against the device's storage namespace and
// returns the outcome. Status and manual-reset endpoints complete the
// per-device surface. Reports for the same device are serialized; different
// devices proceed concurrently.
package enrollhandler
