package ads

// Command identifies an ADS operation carried in the AMS header.
type Command uint16

// ADS command IDs.
const (
	CmdReadDeviceInfo     Command = 0x0001
	CmdRead               Command = 0x0002
	CmdWrite              Command = 0x0003
	CmdReadState          Command = 0x0004
	CmdWriteControl       Command = 0x0005
	CmdAddDeviceNotify    Command = 0x0006
	CmdDeleteDeviceNotify Command = 0x0007
	CmdDeviceNotification Command = 0x0008
	CmdReadWrite          Command = 0x0009
)

func (c Command) String() string {
	switch c {
	case CmdReadDeviceInfo:
		return "ReadDeviceInfo"
	case CmdRead:
		return "Read"
	case CmdWrite:
		return "Write"
	case CmdReadState:
		return "ReadState"
	case CmdWriteControl:
		return "WriteControl"
	case CmdAddDeviceNotify:
		return "AddDeviceNotification"
	case CmdDeleteDeviceNotify:
		return "DeleteDeviceNotification"
	case CmdDeviceNotification:
		return "DeviceNotification"
	case CmdReadWrite:
		return "ReadWrite"
	default:
		return "Unknown"
	}
}

// AMS state flags. Bit 0x0001 marks a response, bit 0x0004 marks an ADS command.
const (
	StateFlagRequest  uint16 = 0x0004
	StateFlagResponse uint16 = 0x0005
)

// Index groups for symbolic and type-table access.
const (
	IndexGroupSymTab          uint32 = 0xF000
	IndexGroupSymName         uint32 = 0xF001
	IndexGroupSymVal          uint32 = 0xF002
	IndexGroupSymHandleByName uint32 = 0xF003
	IndexGroupSymValByHandle  uint32 = 0xF005
	IndexGroupSymReleaseHandle uint32 = 0xF006
	IndexGroupSymInfoByName   uint32 = 0xF007
	IndexGroupSymVersion      uint32 = 0xF008
	IndexGroupSymInfoByNameEx uint32 = 0xF009
	IndexGroupDataTypeInfoByNameEx uint32 = 0xF00A
	IndexGroupSymUpload       uint32 = 0xF00B
	IndexGroupSymUploadInfo   uint32 = 0xF00C
	IndexGroupDataTypeUpload  uint32 = 0xF00E
	IndexGroupSymUploadInfo2  uint32 = 0xF00F
)

// Well-known AMS ports.
const (
	PortLogger        uint16 = 100
	PortEventLog      uint16 = 110
	PortIO            uint16 = 300
	PortNC            uint16 = 500
	PortPLC1          uint16 = 801
	PortPLC2          uint16 = 811
	PortTC3PLC1       uint16 = 851
	PortTC3PLC2       uint16 = 852
	PortSystemService uint16 = 10000
)

// DefaultTCPPort is the AMS/TCP server port TwinCAT listens on.
const DefaultTCPPort = 48898

// PrimitiveKind is the runtime's numeric data_type_id for scalar types, carried
// on the wire in SYM_DT_UPLOAD entries and used to dispatch the value codec.
type PrimitiveKind uint32

const (
	KindVoid    PrimitiveKind = 0
	KindInt16   PrimitiveKind = 2
	KindInt32   PrimitiveKind = 3
	KindReal32  PrimitiveKind = 4
	KindReal64  PrimitiveKind = 5
	KindInt8    PrimitiveKind = 16
	KindUint8   PrimitiveKind = 17
	KindUint16  PrimitiveKind = 18
	KindUint32  PrimitiveKind = 19
	KindInt64   PrimitiveKind = 20
	KindUint64  PrimitiveKind = 21
	KindString  PrimitiveKind = 30
	KindWstring PrimitiveKind = 31
	KindReal80  PrimitiveKind = 32
	KindBit     PrimitiveKind = 33
	KindBigtype PrimitiveKind = 65
)

func (k PrimitiveKind) String() string {
	switch k {
	case KindVoid:
		return "VOID"
	case KindInt16:
		return "INT16"
	case KindInt32:
		return "INT32"
	case KindReal32:
		return "REAL32"
	case KindReal64:
		return "REAL64"
	case KindInt8:
		return "INT8"
	case KindUint8:
		return "UINT8"
	case KindUint16:
		return "UINT16"
	case KindUint32:
		return "UINT32"
	case KindInt64:
		return "INT64"
	case KindUint64:
		return "UINT64"
	case KindString:
		return "STRING"
	case KindWstring:
		return "WSTRING"
	case KindReal80:
		return "REAL80"
	case KindBit:
		return "BIT"
	case KindBigtype:
		return "BIGTYPE"
	default:
		return "UNKNOWN"
	}
}

// primitiveSize returns the fixed wire size for a scalar kind, or 0 for
// variable-length/composite kinds (STRING, WSTRING, BIGTYPE).
func primitiveSize(k PrimitiveKind) int {
	switch k {
	case KindBit, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindReal32, KindVoid:
		return 4
	case KindInt64, KindUint64, KindReal64:
		return 8
	case KindReal80:
		return 10
	default:
		return 0
	}
}

// Notification transmission modes, carried in AddDeviceNotification payloads.
const (
	TransmissionModeNone       uint32 = 0
	TransmissionModeClientCycle uint32 = 1
	TransmissionModeOnChange   uint32 = 3
	TransmissionModeCyclic     uint32 = 4
)

// Symbol flag bits, from SYM_UPLOAD entries.
const (
	SymFlagPersistent uint32 = 0x0001
	SymFlagBitValue   uint32 = 0x0002
	SymFlagReference  uint32 = 0x0008
	SymFlagReadOnly   uint32 = 0x0010
	SymFlagStaticVar  uint32 = 0x0020
	SymFlagInput      uint32 = 0x0040
	SymFlagOutput     uint32 = 0x0080
	SymFlagInOut      uint32 = 0x0100
)

// ADS device states, as returned by ReadState.
const (
	AdsStateInvalid  uint16 = 0
	AdsStateRun      uint16 = 5
	AdsStateStop     uint16 = 6
	AdsStateConfig   uint16 = 15
	AdsStateReconfig uint16 = 16
)
