package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrTransferOverflow    = errors.New("transfer overflow")
	ErrDataCorruption      = fmt.Errorf("data corruption: %w", ErrTransferOverflow)
	ErrTransferInterrupted = errors.New("transfer interrupted by a new length frame")
	ErrNoActiveTransfer    = errors.New("binary frame without an active transfer")
	ErrInvalidLength       = errors.New("invalid length frame")
	ErrTransferInProgress  = errors.New("transfer already in progress on this channel")
	ErrChannelClosed       = errors.New("channel closed")
	ErrBufferTimeout       = errors.New("buffer drain timeout")
)

type TransferError struct {
	Op      string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
