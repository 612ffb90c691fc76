// Package fileerr defines the MmmOST file-engine error taxonomy and its
// mapping onto the two wire-protocol error bytes (retcode, err).
package fileerr

import "errors"

// Sentinel errors, one per original almmmost_file.h RETCODE_*/MMMERR_* constant.
var (
	ErrBadSector       = errors.New("bad sector")
	ErrReadOnly        = errors.New("read only")
	ErrBadSelect       = errors.New("bad disk select")
	ErrDrvType         = errors.New("wrong drive type")
	ErrCmdFault        = errors.New("command fault")
	ErrWriteProt       = errors.New("write protected")
	ErrIllCall         = errors.New("illegal call")
	ErrBadFile         = errors.New("bad file")
	ErrXferOut         = errors.New("transfer out failed")
	ErrXferIn          = errors.New("transfer in failed")
	ErrGenRev          = errors.New("generation/revision mismatch")
	ErrNoSpace         = errors.New("out of space")
	ErrUnwrittenData   = errors.New("unwritten data")
	ErrUnwrittenExtent = errors.New("unwritten extent")
	ErrDirFull         = errors.New("directory full")
	ErrPastEnd         = errors.New("past end of file")
	ErrMiscErr         = errors.New("misc error")
)

// Wire byte values, matching almmmost_file.h's RETCODE_*/MMMERR_* constants
// exactly. retcode and err are independent bytes in the response frame:
// media/selection and command-level failures carry a specific MMMERR_* byte
// in err with retcode pinned to RetMiscErr (the original's open_error/
// modifydir_error funnel), while file-I/O-level failures instead vary
// retcode (UnwrittenData/UnwrittenExtent/DirFull/PastEnd) and leave err at
// MMMERR_OK.
const (
	RetOK              byte = 0
	RetUnwrittenData   byte = 1
	RetUnwrittenExtent byte = 4
	RetDirFull         byte = 5
	RetPastEnd         byte = 6
	RetMiscErr         byte = 0xFF

	ErrNone       byte = 0 // MMMERR_OK
	ErrCmdFaultB  byte = 1 // MMMERR_CMDFAULT
	ErrWriteProtB byte = 2 // MMMERR_WRTPROT
	ErrIllCallB   byte = 3 // MMMERR_ILLCALL
	ErrBadFileB   byte = 4 // MMMERR_BADFILE
	ErrDrvTypeB   byte = 5 // MMMERR_DRVTYPE
	ErrXferOutB   byte = 6 // MMMERR_XFROUT
	ErrXferInB    byte = 7 // MMMERR_XFRIN
	ErrGenRevB    byte = 8 // MMMERR_GENREV
	ErrNoSpaceB   byte = 9 // MMMERR_NOSPACE

	ErrBadSectorB byte = 0x90 // MMMERR_BADSECT
	ErrReadOnlyB  byte = 0x98 // MMMERR_RO
	ErrBadSelectB byte = 0xC0 // MMMERR_SELECT
)

// ToWire maps an error produced by the file engine onto the protocol's
// (retcode, err) byte pair. A nil error maps to (RetOK, ErrNone).
func ToWire(e error) (retcode, errb byte) {
	if e == nil {
		return RetOK, ErrNone
	}
	switch {
	// File-I/O-level failures: retcode varies, err stays MMMERR_OK, per
	// alm_file_doread/alm_file_dowrite.
	case errors.Is(e, ErrUnwrittenData):
		return RetUnwrittenData, ErrNone
	case errors.Is(e, ErrUnwrittenExtent):
		return RetUnwrittenExtent, ErrNone
	case errors.Is(e, ErrDirFull):
		return RetDirFull, ErrNone
	case errors.Is(e, ErrPastEnd):
		return RetPastEnd, ErrNone

	// Media/selection failures: retcode pinned to RetMiscErr, err carries
	// the real MMMERR_* byte, per alm_file_doopen.
	case errors.Is(e, ErrBadSector):
		return RetMiscErr, ErrBadSectorB
	case errors.Is(e, ErrReadOnly):
		return RetMiscErr, ErrReadOnlyB
	case errors.Is(e, ErrBadSelect):
		return RetMiscErr, ErrBadSelectB

	// Command/request-level failures: same open_error/modifydir_error
	// funnel, retcode pinned to RetMiscErr.
	case errors.Is(e, ErrDrvType):
		return RetMiscErr, ErrDrvTypeB
	case errors.Is(e, ErrCmdFault):
		return RetMiscErr, ErrCmdFaultB
	case errors.Is(e, ErrWriteProt):
		return RetMiscErr, ErrWriteProtB
	case errors.Is(e, ErrIllCall):
		return RetMiscErr, ErrIllCallB
	case errors.Is(e, ErrBadFile):
		return RetMiscErr, ErrBadFileB
	case errors.Is(e, ErrXferOut):
		return RetMiscErr, ErrXferOutB
	case errors.Is(e, ErrXferIn):
		return RetMiscErr, ErrXferInB
	case errors.Is(e, ErrGenRev):
		return RetMiscErr, ErrGenRevB
	case errors.Is(e, ErrNoSpace):
		return RetMiscErr, ErrNoSpaceB

	// Generic dispatch-level rejection (e.g. a directory op hitting an
	// open file): err=MMMERR_OK, retcode=RETCODE_MISCERR.
	case errors.Is(e, ErrMiscErr):
		return RetMiscErr, ErrNone

	default:
		return RetMiscErr, ErrNone
	}
}
