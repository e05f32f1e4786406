// Package hardware provides the mode.Driver implementations used by the
// server and the tests.
//
// Mock simulates a device whose Configure is immediate and whose Operate
// takes a fixed bring-up time. Faulty wraps any driver and injects
// Configure/Operate failures.
package hardware
