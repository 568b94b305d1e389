// Package keyvar implements keyword variables: typed, observable value cells
// that hold the latest value of one (actor, keyword) pair published on the hub.
//
// A KeyVar has one converter per value slot. The last converter repeats when
// more values arrive than converters were declared, so a keyword such as
// "AxisCmdState" with an arbitrary number of string values needs only
// []Converter{AsString}.
//
// # Setting Values
//
// Set converts raw values slot by slot. A slot that fails to convert becomes
// nil and is logged; the other slots still convert. A value list whose length
// falls outside [MinCount, MaxCount] is rejected with ErrCountMismatch and the
// previous value is kept. Set(nil, ...) restores the default values and marks
// the variable not current.
//
// # Callbacks
//
// Subscribers register a Callback with AddCallback. Callbacks run in
// registration order after every Set and SetNotCurrent. A panicking callback is
// recovered and logged with its stack and the remaining callbacks still run.
// Callbacks run without any KeyVar lock held, so they may call back into the
// KeyVar or register further variables.
//
// # PVT Variables
//
// PVTKeyVar holds (position, velocity, time) triples. Each logical slot
// consumes three raw values. While any slot has non-zero velocity the
// callbacks are re-run once per NotifyInterval so displays that extrapolate
// position stay current between updates.
//
// # Refresh Commands
//
// A KeyVar may carry a refresh command: the actor and command text that make
// the hub re-send the keyword. The dispatcher issues it when the variable is
// not current.
package keyvar
