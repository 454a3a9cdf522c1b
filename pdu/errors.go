package pdu

import "fmt"

// HCI/LL Error Codes (Bluetooth Core Spec v5.3 Vol 1, Part F, Section 1.3)
// These travel inside LL_TERMINATE_IND, LL_REJECT_IND and LL_REJECT_EXT_IND
// and are also the status values returned by the control API.
const (
	ErrSuccess               = 0x00
	ErrUnknownConnID         = 0x02
	ErrPinOrKeyMissing       = 0x06
	ErrCmdDisallowed         = 0x0C
	ErrUnsuppFeatureParamVal = 0x11
	ErrInvalidParam          = 0x12
	ErrRemoteUserTermConn    = 0x13
	ErrLocalHostTermConn     = 0x16
	ErrUnsuppRemoteFeature   = 0x1A
	ErrInvalidLLParam        = 0x1E
	ErrUnspecified           = 0x1F
	ErrUnsuppLLParamVal      = 0x20
	ErrLLRespTimeout         = 0x22
	ErrLLProcCollision       = 0x23
	ErrEncModeNotAcceptable  = 0x25
	ErrInstantPassed         = 0x28
	ErrDiffTransCollision    = 0x2A
	ErrUnacceptConnParam     = 0x3B
	ErrTermDueToMICFailure   = 0x3D
)

// ErrorNames maps error codes to human-readable names
var ErrorNames = map[uint8]string{
	ErrSuccess:               "Success",
	ErrUnknownConnID:         "Unknown Connection Identifier",
	ErrPinOrKeyMissing:       "PIN or Key Missing",
	ErrCmdDisallowed:         "Command Disallowed",
	ErrUnsuppFeatureParamVal: "Unsupported Feature or Parameter Value",
	ErrInvalidParam:          "Invalid HCI Command Parameters",
	ErrRemoteUserTermConn:    "Remote User Terminated Connection",
	ErrLocalHostTermConn:     "Connection Terminated by Local Host",
	ErrUnsuppRemoteFeature:   "Unsupported Remote Feature",
	ErrInvalidLLParam:        "Invalid LL Parameters",
	ErrUnspecified:           "Unspecified Error",
	ErrUnsuppLLParamVal:      "Unsupported LL Parameter Value",
	ErrLLRespTimeout:         "LL Response Timeout",
	ErrLLProcCollision:       "LL Procedure Collision",
	ErrEncModeNotAcceptable:  "Encryption Mode Not Acceptable",
	ErrInstantPassed:         "Instant Passed",
	ErrDiffTransCollision:    "Different Transaction Collision",
	ErrUnacceptConnParam:     "Unacceptable Connection Parameters",
	ErrTermDueToMICFailure:   "Connection Terminated due to MIC Failure",
}

// ErrorName returns the name of an error code.
func ErrorName(code uint8) string {
	if name, ok := ErrorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Error 0x%02X", code)
}

// IsCollision reports whether code is one of the two collision error codes.
func IsCollision(code uint8) bool {
	return code == ErrLLProcCollision || code == ErrDiffTransCollision
}
