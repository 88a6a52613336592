// Package cmdproto implements the ASCII register access protocol
// carried over the UART byte stream.
package cmdproto

// A command is a single letter operation, two hex digits of register
// address, for writes four hex digits of data, and a carriage return:
//
//   R0A\r       read register 0x0A
//   W0A1234\r   write 0x1234 to register 0x0A
//
// The device replies to a read with four hex digits and a carriage
// return. Writes are not acknowledged.
//
// Anything not matching the grammar is dropped. The parser then waits
// for the next 'R' or 'W', so the stream is recoverable from noise
// or truncated commands without any framing beyond the terminator.
//
// Producer: host
// Consumer: device (a UART receiver feeding Parser)
