package transfer

import (
	"errors"
	"fmt"
)

type Kind int

const (
	ConnectFailed Kind = iota + 1
	UnknownSize
	FileCreateFailed
	FileOpenFailed
	WriteFailed
	ReadFailed
	UploadFailed
)

func (k Kind) String() string {
	switch k {
	case ConnectFailed:
		return "connect failed"
	case UnknownSize:
		return "unknown size"
	case FileCreateFailed:
		return "file create failed"
	case FileOpenFailed:
		return "file open failed"
	case WriteFailed:
		return "write failed"
	case ReadFailed:
		return "read failed"
	case UploadFailed:
		return "upload failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the terminal result of a failed transfer.
type Error struct {
	Kind Kind
	Op   string // "download" or "upload"
	URL  string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a transfer error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}

// KindOf returns the kind of a transfer error, or 0 if err is not one.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}
