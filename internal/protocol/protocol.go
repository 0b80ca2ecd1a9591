// Package protocol encodes control commands and decodes worker acknowledgements.
//
// The wire format is code-only: every message is exactly one unsigned byte.
// Commands travel host->worker, acknowledgements travel worker->host, and a
// single read may carry any number of acknowledgement bytes.
package protocol

import (
	"fmt"
	"io"
)

// Command is a one-byte request sent to the worker.
type Command uint8

const (
	CommandGetStatus  Command = 71
	CommandNotifyStop Command = 72
)

// Ack is a one-byte acknowledgement or notification sent by the worker.
type Ack uint8

const (
	AckSayOK      Ack = 171
	AckGripeRegex Ack = 172
)

func (c Command) String() string {
	switch c {
	case CommandGetStatus:
		return "GET_STATUS"
	case CommandNotifyStop:
		return "NOTIFY_STOP"
	default:
		return fmt.Sprintf("COMMAND(%d)", uint8(c))
	}
}

// Encode serializes the command as its single numeric byte.
func (c Command) Encode() []byte {
	return []byte{byte(c)}
}

// WriteCommand writes one encoded command to w.
func WriteCommand(w io.Writer, c Command) error {
	n, err := w.Write(c.Encode())
	if err != nil {
		return fmt.Errorf("write %s: %w", c, err)
	}
	if n != 1 {
		return fmt.Errorf("write %s: %w", c, io.ErrShortWrite)
	}
	return nil
}

func (a Ack) String() string {
	switch a {
	case AckSayOK:
		return "SAY_OK"
	case AckGripeRegex:
		return "GRIPE_REGEX"
	default:
		return fmt.Sprintf("ACK(%d)", uint8(a))
	}
}

// Known reports whether a has a defined meaning in this protocol version.
func (a Ack) Known() bool {
	switch a {
	case AckSayOK, AckGripeRegex:
		return true
	default:
		return false
	}
}

// Decode splits an inbound chunk into acknowledgements in arrival order.
func Decode(chunk []byte) []Ack {
	acks := make([]Ack, len(chunk))
	for i, b := range chunk {
		acks[i] = Ack(b)
	}
	return acks
}
