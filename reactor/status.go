package reactor

import (
	"context"
	"net"
	"os"
	"strconv"
	"syscall"

	E "github.com/sagernet/sing-uv/common/exceptions"

	"golang.org/x/sys/unix"
)

// Status is a native result code. Zero means success and negative values
// carry a negated errno or one of the reactor specific codes.
type Status int

const (
	StatusOK            Status = 0
	StatusAgain         Status = -Status(unix.EAGAIN)
	StatusBadFD         Status = -Status(unix.EBADF)
	StatusBusy          Status = -Status(unix.EBUSY)
	StatusInvalid       Status = -Status(unix.EINVAL)
	StatusPipe          Status = -Status(unix.EPIPE)
	StatusNotSupported  Status = -Status(unix.ENOTSUP)
	StatusNoBufs        Status = -Status(unix.ENOBUFS)
	StatusConnReset     Status = -Status(unix.ECONNRESET)
	StatusConnRefused   Status = -Status(unix.ECONNREFUSED)
	StatusNotConnected  Status = -Status(unix.ENOTCONN)
	StatusTimedOut      Status = -Status(unix.ETIMEDOUT)
	StatusAlready       Status = -Status(unix.EALREADY)
	StatusCanceled      Status = -Status(unix.ECANCELED)
	StatusAddrInfoAgain Status = -3001
	StatusNoName        Status = -3008
	StatusUnknown       Status = -4094
	StatusEOF           Status = -4095
)

func (s Status) Error() string {
	switch s {
	case StatusOK:
		return "success"
	case StatusEOF:
		return "end of file"
	case StatusNoName:
		return "unknown node or service"
	case StatusAddrInfoAgain:
		return "temporary failure"
	case StatusUnknown:
		return "unknown error"
	}
	if s > 0 {
		return "status " + strconv.Itoa(int(s))
	}
	return syscall.Errno(-s).Error()
}

// Name returns the symbolic name of s, like EAGAIN or EOF.
func (s Status) Name() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusEOF:
		return "EOF"
	case StatusNoName:
		return "EAI_NONAME"
	case StatusAddrInfoAgain:
		return "EAI_AGAIN"
	case StatusUnknown:
		return "UNKNOWN"
	}
	if s < 0 {
		if name := unix.ErrnoName(syscall.Errno(-s)); name != "" {
			return name
		}
	}
	return "S" + strconv.Itoa(int(s))
}

func (s Status) String() string {
	return s.Name()
}

// StatusOf converts an error returned by the system or the resolver into a Status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if status, isStatus := E.Cast[Status](err); isStatus {
		return status
	}
	if errno, isErrno := E.Cast[syscall.Errno](err); isErrno {
		if errno == 0 {
			return StatusOK
		}
		return -Status(errno)
	}
	if dnsErr, isDNSErr := E.Cast[*net.DNSError](err); isDNSErr {
		switch {
		case dnsErr.IsNotFound:
			return StatusNoName
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return StatusAddrInfoAgain
		}
		return StatusNoName
	}
	switch {
	case E.Is(err, context.Canceled):
		return StatusCanceled
	case E.Is(err, context.DeadlineExceeded, os.ErrDeadlineExceeded):
		return StatusTimedOut
	case E.Is(err, net.ErrClosed, os.ErrClosed):
		return StatusBadFD
	}
	return StatusUnknown
}

// statusError returns nil for success and the Status otherwise.
func statusError(err error) error {
	status := StatusOf(err)
	if status == StatusOK {
		return nil
	}
	return status
}
