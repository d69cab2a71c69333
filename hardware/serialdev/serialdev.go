// Package serialdev drives motor axes through a line-oriented ASCII protocol,
// as spoken by motion controllers on an RS-232 port or a serial-over-TCP
// terminal server.
//
// Requests and replies are single CRLF-terminated lines:
//
//	MOV <axis> <ABS|REL> <value>   ->  OK <position>
//	POS <axis>                     ->  OK <position>
//	any failure                    ->  ERR <code> <message>
//
// Values are in the canonical units of hardware.Controller.
package serialdev

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/model"
)

// ErrProtocol is returned for replies that do not follow the line protocol.
var ErrProtocol = errors.New("serial protocol error")

// Error codes carried by ERR replies.
const (
	codeAxis    = "AXIS"
	codeRange   = "RANGE"
	codeCommand = "CMD"
	codeFault   = "FAULT"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 2 * time.Second
)

// OpenPort opens a local serial port at baudRate, 8N1. Reads block until
// data arrives or the port is closed. A non-positive baudRate selects
// DefaultBaudRate.
func OpenPort(portName string, baudRate int) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return port, nil
}

// Open connects to a controller on a local serial port.
func Open(portName string, baudRate int, log logging.Logger) (*Controller, error) {
	port, err := OpenPort(portName, baudRate)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configure serial port %s: %w", portName, err)
	}
	return NewController(port, log), nil
}

// Dial connects to a controller behind a serial-over-TCP terminal server.
func Dial(ctx context.Context, addr string, log logging.Logger) (*Controller, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", addr, err)
	}
	return NewController(conn, log), nil
}

// Ports lists the serial ports visible to the host.
func Ports() ([]string, error) { return serial.GetPortsList() }

// deadliner is implemented by network connections; serial ports rely on the
// read timeout set at Open instead.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Controller is a hardware.Controller speaking the line protocol. Commands are
// serialized: one request is in flight at a time.
type Controller struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	r    *bufio.Reader
	log  logging.Logger
}

var _ hardware.Controller = (*Controller)(nil)

func NewController(conn io.ReadWriteCloser, log logging.Logger) *Controller {
	return &Controller{conn: conn, r: bufio.NewReader(conn), log: logging.OrNoop(log)}
}

func (c *Controller) Close() error { return c.conn.Close() }

func (c *Controller) Move(ctx context.Context, axis hardware.Axis, value float64, movement model.Movement) (float64, error) {
	var mode string
	switch movement {
	case model.Absolute:
		mode = "ABS"
	case model.Relative:
		mode = "REL"
	default:
		return 0, fmt.Errorf("%w: movement %d", model.ErrUnknownTag, int(movement))
	}
	return c.roundTrip(ctx, fmt.Sprintf("MOV %s %s %s", axis, mode, formatValue(value)))
}

func (c *Controller) Position(ctx context.Context, axis hardware.Axis) (float64, error) {
	return c.roundTrip(ctx, "POS "+string(axis))
}

func (c *Controller) roundTrip(ctx context.Context, cmd string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.conn.(deadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = d.SetDeadline(deadline)
			defer d.SetDeadline(time.Time{})
		}
	}

	c.log.Debug(ctx, "serial command", logging.String("cmd", cmd))
	if _, err := io.WriteString(c.conn, cmd+"\r\n"); err != nil {
		return 0, fmt.Errorf("write %q: %w", cmd, err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return 0, fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return parseReply(strings.TrimSpace(line))
}

func parseReply(line string) (float64, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "OK":
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: reply %q", ErrProtocol, line)
		}
		return v, nil
	case "ERR":
		code, msg, _ := strings.Cut(rest, " ")
		return 0, replyError(code, msg)
	default:
		return 0, fmt.Errorf("%w: reply %q", ErrProtocol, line)
	}
}

func replyError(code, msg string) error {
	switch code {
	case codeAxis:
		return fmt.Errorf("%w: %s", hardware.ErrUnknownAxis, msg)
	case codeRange:
		return fmt.Errorf("%w: %s", hardware.ErrUnreachablePosition, msg)
	case codeCommand:
		return fmt.Errorf("%w: %s", ErrProtocol, msg)
	default:
		return fmt.Errorf("controller fault %s: %s", code, msg)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, hardware.ErrUnknownAxis):
		return codeAxis
	case errors.Is(err, hardware.ErrUnreachablePosition):
		return codeRange
	case errors.Is(err, ErrProtocol), errors.Is(err, model.ErrUnknownTag):
		return codeCommand
	default:
		return codeFault
	}
}

func formatValue(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Serve answers line-protocol requests on rw with ctrl until rw reaches EOF or
// ctx is cancelled. It lets a SimulatedDevice stand in for a real controller.
func Serve(ctx context.Context, rw io.ReadWriter, ctrl hardware.Controller, log logging.Logger) error {
	log = logging.OrNoop(log)
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pos, err := handle(ctx, ctrl, line)
		reply := "OK " + formatValue(pos)
		if err != nil {
			log.Debug(ctx, "serial command rejected", logging.String("cmd", line), logging.Err(err))
			reply = fmt.Sprintf("ERR %s %s", errorCode(err), err.Error())
		}
		if _, err := io.WriteString(rw, reply+"\r\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func handle(ctx context.Context, ctrl hardware.Controller, line string) (float64, error) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 4 && strings.EqualFold(fields[0], "MOV"):
		axis, err := hardware.ParseAxis(fields[1])
		if err != nil {
			return 0, err
		}
		movement, err := model.ParseMovement(fields[2])
		if err != nil {
			return 0, err
		}
		value, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: value %q", ErrProtocol, fields[3])
		}
		return ctrl.Move(ctx, axis, value, movement)
	case len(fields) == 2 && strings.EqualFold(fields[0], "POS"):
		axis, err := hardware.ParseAxis(fields[1])
		if err != nil {
			return 0, err
		}
		return ctrl.Position(ctx, axis)
	default:
		return 0, fmt.Errorf("%w: command %q", ErrProtocol, line)
	}
}
