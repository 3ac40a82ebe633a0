package cw

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// CI-V frame constants. Addresses default to an IC-7300 talking to a
// controller; both are configurable on the client.
const (
	civPreamble    = 0xFE
	civEnd         = 0xFD
	civDefaultRig  = 0x94
	civDefaultCtrl = 0xE0
	civCmdReadFreq = 0x03
	civCmdReadMode = 0x04
	civCmdSendCW   = 0x17
	civMaxMessLen  = 30
	civReadTimeout = 500 * time.Millisecond
)

// ErrKeyerClosed reports an operation on a keyer whose port is not
// open.
var ErrKeyerClosed = errors.New("keyer port not open")

// SerialPort abstracts the serial connection for testing.
type SerialPort interface {
	io.ReadWriteCloser
}

// Keyer sends CW and reads rig state over a CI-V serial link. It lets
// an operator answer a decoded station without a separate keying
// program.
type Keyer struct {
	Port     string
	BaudRate int
	RigAddr  byte
	CtrlAddr byte

	conn SerialPort
}

// NewKeyer builds a client with default IC-7300 addressing.
func NewKeyer(port string, baudRate int) *Keyer {
	return &Keyer{
		Port:     port,
		BaudRate: baudRate,
		RigAddr:  civDefaultRig,
		CtrlAddr: civDefaultCtrl,
	}
}

// Open connects the serial port.
func (k *Keyer) Open() error {
	s, err := serial.OpenPort(&serial.Config{
		Name:        k.Port,
		Baud:        k.BaudRate,
		ReadTimeout: civReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("open keyer port %s: %w", k.Port, err)
	}
	k.conn = s
	return nil
}

// Close releases the port. Safe on an unopened client.
func (k *Keyer) Close() error {
	if k.conn == nil {
		return nil
	}
	err := k.conn.Close()
	k.conn = nil
	return err
}

// sendCommand writes one frame: FE FE [rig] [ctrl] [cmd] [data...] FD.
func (k *Keyer) sendCommand(cmd byte, data []byte) error {
	if k.conn == nil {
		return ErrKeyerClosed
	}
	frame := []byte{civPreamble, civPreamble, k.RigAddr, k.CtrlAddr, cmd}
	frame = append(frame, data...)
	frame = append(frame, civEnd)
	_, err := k.conn.Write(frame)
	return err
}

// SendText keys the message through the rig's internal keyer. The rig
// limits a message to 30 ASCII characters; longer text is split into
// sequential frames.
func (k *Keyer) SendText(text string) error {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > civMaxMessLen {
			chunk = chunk[:civMaxMessLen]
		}
		text = text[len(chunk):]
		if err := k.sendCommand(civCmdSendCW, []byte(chunk)); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrequency returns the rig's operating frequency in Hz. The rig
// answers with 5 BCD bytes, least significant pair first.
func (k *Keyer) ReadFrequency() (int, error) {
	if err := k.sendCommand(civCmdReadFreq, nil); err != nil {
		return 0, err
	}
	resp, err := k.readResponse(civCmdReadFreq)
	if err != nil {
		return 0, err
	}
	if len(resp) < 5 {
		return 0, fmt.Errorf("short frequency response (%d bytes)", len(resp))
	}

	freq := 0
	multiplier := 1
	for i := 0; i < 5; i++ {
		freq += bcdToDecimal(resp[i]) * multiplier
		multiplier *= 100
	}
	return freq, nil
}

var civModes = map[byte]string{
	0x00: "LSB", 0x01: "USB", 0x02: "AM", 0x03: "CW",
	0x04: "RTTY", 0x05: "FM", 0x07: "CW-R", 0x08: "RTTY-R",
	0x17: "DV",
}

// ReadMode returns the rig's operating mode name.
func (k *Keyer) ReadMode() (string, error) {
	if err := k.sendCommand(civCmdReadMode, nil); err != nil {
		return "", err
	}
	resp, err := k.readResponse(civCmdReadMode)
	if err != nil {
		return "", err
	}
	if len(resp) < 1 {
		return "", fmt.Errorf("empty mode response")
	}
	if name, ok := civModes[resp[0]]; ok {
		return name, nil
	}
	return fmt.Sprintf("Unknown(0x%02X)", resp[0]), nil
}

// readResponse scans the read buffer for the rig's answer to cmd and
// returns its data bytes. The port may echo our own frame first; the
// header match skips it because the echo has rig and controller
// addresses swapped.
func (k *Keyer) readResponse(cmd byte) ([]byte, error) {
	if k.conn == nil {
		return nil, ErrKeyerClosed
	}
	buf := make([]byte, 1024)
	n, _ := k.conn.Read(buf)
	if n == 0 {
		return nil, fmt.Errorf("no response from rig")
	}
	data := buf[:n]

	header := []byte{civPreamble, civPreamble, k.CtrlAddr, k.RigAddr, cmd}
	idx := bytes.Index(data, header)
	if idx == -1 {
		return nil, fmt.Errorf("response header not found in %s", hex.EncodeToString(data))
	}

	frame := data[idx:]
	endIdx := bytes.IndexByte(frame, civEnd)
	if endIdx == -1 {
		return nil, fmt.Errorf("frame end not found")
	}
	if endIdx <= len(header) {
		return []byte{}, nil
	}
	return frame[len(header):endIdx], nil
}

func bcdToDecimal(b byte) int {
	return int((b>>4)*10 + (b & 0x0F))
}
