package voting

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrContractRevert matches every RevertError.
var ErrContractRevert = errors.New("contract reverted")

// RevertError is a remote rejection of a contract call. Error returns the
// node's message unmodified; Reason holds the decoded Error(string) payload
// when the node returned one.
type RevertError struct {
	Method string
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Err == nil {
		return ErrContractRevert.Error()
	}
	return e.Err.Error()
}

func (e *RevertError) Unwrap() error { return e.Err }

func (e *RevertError) Is(target error) bool { return target == ErrContractRevert }

// classifyCallError wraps err in a RevertError when the node reports an
// execution revert. Transport and other failures are returned unchanged.
func classifyCallError(method string, err error) error {
	if err == nil {
		return nil
	}
	var existing *RevertError
	if errors.As(err, &existing) {
		return err
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return &RevertError{Method: method, Reason: revertReason(dataErr.ErrorData()), Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "vm exception") || strings.Contains(msg, "revert") {
		return &RevertError{Method: method, Err: err}
	}
	return err
}

func revertReason(data interface{}) string {
	raw, ok := data.(string)
	if !ok {
		return ""
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(decoded)
	if err != nil {
		return ""
	}
	return reason
}
