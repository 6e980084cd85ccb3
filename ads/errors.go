package ads

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy that does not carry per-instance data.
// Wrap these with fmt.Errorf("...: %w", ErrX) at the call site when more
// context is useful; callers should match with errors.Is.
var (
	ErrConfigInvalid        = errors.New("ads: invalid configuration")
	ErrNotConnected         = errors.New("ads: not connected")
	ErrDisconnected         = errors.New("ads: session disconnected")
	ErrRequestTimeout       = errors.New("ads: request timed out")
	ErrDuplicateInvokeId    = errors.New("ads: duplicate invoke id")
	ErrFrameTooShort        = errors.New("ads: frame too short")
	ErrUnknownCommand       = errors.New("ads: unknown command id")
	ErrDecodeInvalid        = errors.New("ads: invalid encoded data")
	ErrSymbolNotFound       = errors.New("ads: symbol not found")
	ErrSubItemNotFound      = errors.New("ads: sub-item not found")
	ErrArrayDimensionMismatch = errors.New("ads: array dimension mismatch")
	ErrIndexOutOfBounds     = errors.New("ads: array index out of bounds")
	ErrStructureShapeMismatch = errors.New("ads: structure value shape mismatch")
	ErrArrayShapeMismatch   = errors.New("ads: array value shape mismatch")
	ErrUnsupportedType      = errors.New("ads: unsupported type")
	ErrTooManyHandles       = errors.New("ads: too many notification handles")
)

// AdsError reports a nonzero error code from a device response, mapped to
// its textual name per the Beckhoff error-code table.
type AdsError struct {
	Code uint32
}

func (e *AdsError) Error() string {
	return fmt.Sprintf("ads: device error 0x%04X: %s", e.Code, adsErrorName(e.Code))
}

// Is lets errors.Is(err, &AdsError{}) match any AdsError regardless of code.
func (e *AdsError) Is(target error) bool {
	_, ok := target.(*AdsError)
	return ok
}

// Common ADS error codes (ADS return values), as returned in the AMS header's
// ErrorCode field or as an ADS-level result in a command's response payload.
const (
	ErrNoError                    uint32 = 0x0000
	ErrInternal                   uint32 = 0x0001
	ErrNoRuntime                  uint32 = 0x0002
	ErrAllocLockedMem             uint32 = 0x0003
	ErrInsertMailbox              uint32 = 0x0004
	ErrWrongHMsg                  uint32 = 0x0005
	ErrTargetPortNotFound         uint32 = 0x0006
	ErrTargetMachineNotFound      uint32 = 0x0007
	ErrUnknownCmdId               uint32 = 0x0008
	ErrBadTaskId                  uint32 = 0x0009
	ErrNoIO                       uint32 = 0x000A
	ErrUnknownAmsCmd              uint32 = 0x000B
	ErrWin32Error                 uint32 = 0x000C
	ErrPortNotConnected           uint32 = 0x000D
	ErrInvalidAmsLength           uint32 = 0x000E
	ErrInvalidAmsNetId            uint32 = 0x000F
	ErrLowInstLevel               uint32 = 0x0010
	ErrNoDebugInfo                uint32 = 0x0011
	ErrPortDisabled               uint32 = 0x0012
	ErrPortAlreadyConnected       uint32 = 0x0013
	ErrAmsSync                    uint32 = 0x0014
	ErrAmsSyncSendError           uint32 = 0x0015
	ErrAmsNoSync                  uint32 = 0x0016
	ErrNoIndexMap                 uint32 = 0x0017
	ErrInvalidAmsPort             uint32 = 0x0018
	ErrNoMemory                   uint32 = 0x0019
	ErrTcpSend                    uint32 = 0x001A
	ErrHostUnreachable            uint32 = 0x001B
	ErrInvalidAmsFragment         uint32 = 0x001C
	ErrTlsSend                    uint32 = 0x001D
	ErrAccessDenied               uint32 = 0x001E

	ErrRouterNoLockedMem     uint32 = 0x0500
	ErrRouterResizeMem       uint32 = 0x0501
	ErrRouterMailboxFull     uint32 = 0x0502
	ErrRouterDebugboxFull    uint32 = 0x0503
	ErrRouterUnknownPortType uint32 = 0x0504
	ErrRouterNotInitialized  uint32 = 0x0505
	ErrRouterPortRemoved     uint32 = 0x0506
	ErrRouterPortNotOpen     uint32 = 0x0507
	ErrRouterPortOpen        uint32 = 0x0508
	ErrRouterPortConnected   uint32 = 0x0509
	ErrRouterPortNotConnected uint32 = 0x050A
	ErrRouterNoSendQueue     uint32 = 0x050B

	ErrDeviceError                uint32 = 0x0700
	ErrDeviceSrvNotSupp           uint32 = 0x0701
	ErrDeviceInvalidGrp           uint32 = 0x0702
	ErrDeviceInvalidOffs          uint32 = 0x0703
	ErrDeviceInvalidAccess        uint32 = 0x0704
	ErrDeviceInvalidSize          uint32 = 0x0705
	ErrDeviceInvalidData          uint32 = 0x0706
	ErrDeviceNotReady             uint32 = 0x0707
	ErrDeviceBusy                 uint32 = 0x0708
	ErrDeviceInvalidContext       uint32 = 0x0709
	ErrDeviceNoMemory             uint32 = 0x070A
	ErrDeviceInvalidParam         uint32 = 0x070B
	ErrDeviceNotFound             uint32 = 0x070C
	ErrDeviceSyntax               uint32 = 0x070D
	ErrDeviceIncompatible         uint32 = 0x070E
	ErrDeviceExists               uint32 = 0x070F
	ErrDeviceSymbolNotFound       uint32 = 0x0710
	ErrDeviceSymbolVersionInvalid uint32 = 0x0711
	ErrDeviceInvalidState         uint32 = 0x0712
	ErrDeviceTransModeNotSupp     uint32 = 0x0713
	ErrDeviceNotifyHndInvalid     uint32 = 0x0714
	ErrDeviceClientUnknown        uint32 = 0x0715
	ErrDeviceNoMoreHdls           uint32 = 0x0716
	ErrDeviceInvalidWatchSize     uint32 = 0x0717
	ErrDeviceNotInit              uint32 = 0x0718
	ErrDeviceTimeout              uint32 = 0x0719
	ErrDeviceNoInterface          uint32 = 0x071A
	ErrDeviceInvalidInterface     uint32 = 0x071B
	ErrDeviceInvalidClsId         uint32 = 0x071C
	ErrDeviceInvalidObjId         uint32 = 0x071D
	ErrDevicePending              uint32 = 0x071E
	ErrDeviceAborted              uint32 = 0x071F
	ErrDeviceWarning              uint32 = 0x0720
	ErrDeviceInvalidArrayIdx      uint32 = 0x0721
	ErrDeviceSymbolNotActive      uint32 = 0x0722
	ErrDeviceAccessDenied         uint32 = 0x0723
)

func adsErrorName(code uint32) string {
	switch code {
	case ErrNoError:
		return "no error"
	case ErrTargetPortNotFound:
		return "target port not found"
	case ErrTargetMachineNotFound:
		return "target machine not found"
	case ErrUnknownCmdId:
		return "unknown command id"
	case ErrPortNotConnected:
		return "port not connected"
	case ErrInvalidAmsLength:
		return "invalid AMS length"
	case ErrInvalidAmsNetId:
		return "invalid AMS net id"
	case ErrDeviceError:
		return "device error"
	case ErrDeviceSrvNotSupp:
		return "service not supported"
	case ErrDeviceInvalidGrp:
		return "invalid index group"
	case ErrDeviceInvalidOffs:
		return "invalid index offset"
	case ErrDeviceInvalidAccess:
		return "invalid access"
	case ErrDeviceInvalidSize:
		return "invalid size"
	case ErrDeviceInvalidData:
		return "invalid data"
	case ErrDeviceNotReady:
		return "device not ready"
	case ErrDeviceBusy:
		return "device busy"
	case ErrDeviceNoMemory:
		return "out of memory"
	case ErrDeviceInvalidParam:
		return "invalid parameter"
	case ErrDeviceNotFound:
		return "device not found"
	case ErrDeviceSymbolNotFound:
		return "symbol not found"
	case ErrDeviceInvalidState:
		return "invalid state"
	case ErrDeviceNotifyHndInvalid:
		return "invalid notification handle"
	case ErrDeviceNoMoreHdls:
		return "no more notification handles"
	case ErrDeviceTimeout:
		return "timeout"
	case ErrDeviceInvalidArrayIdx:
		return "invalid array index"
	case ErrDeviceAccessDenied:
		return "access denied"
	default:
		return "unknown error"
	}
}
