package msgfile

import "time"

// MAPI property ids carried in property stream names.
const (
	MAPISubject          = 0x0037 // PR_SUBJECT
	MAPIHeaders          = 0x007D // PR_TRANSPORT_MESSAGE_HEADERS
	MAPISenderName       = 0x0C1A // PR_SENDER_NAME
	MAPISenderEmail      = 0x0C1F // PR_SENDER_EMAIL_ADDRESS
	MAPIDisplayBcc       = 0x0E02 // PR_DISPLAY_BCC
	MAPIDisplayCc        = 0x0E03 // PR_DISPLAY_CC
	MAPIDisplayTo        = 0x0E04 // PR_DISPLAY_TO
	MAPIBody             = 0x1000 // PR_BODY
	MAPIBodyHTML         = 0x1013 // PR_BODY_HTML
	MAPIMessageID        = 0x1035 // PR_INTERNET_MESSAGE_ID
	MAPIRecipDisplayName = 0x3001 // PR_DISPLAY_NAME
	MAPIRecipEmail       = 0x3003 // PR_EMAIL_ADDRESS
	MAPIAttachDataObj    = 0x3701 // PR_ATTACH_DATA_OBJ
	MAPIAttachFilename   = 0x3704 // PR_ATTACH_FILENAME
	MAPIAttachMethod     = 0x3705 // PR_ATTACH_METHOD
	MAPIAttachLongFname  = 0x3707 // PR_ATTACH_LONG_FILENAME
	MAPIAttachMimeTag    = 0x370E // PR_ATTACH_MIME_TAG
	MAPIAttachContentID  = 0x3712 // PR_ATTACH_CONTENT_ID
	MAPIRecipSMTP        = 0x39FE // PR_SMTP_ADDRESS
	MAPISenderSMTP       = 0x5D01 // PR_SENDER_SMTP_ADDRESS

	MAPISubmitTime   = 0x0039 // PR_CLIENT_SUBMIT_TIME
	MAPIDeliveryTime = 0x0E06 // PR_MESSAGE_DELIVERY_TIME
	MAPIRecipType    = 0x0C15 // PR_RECIPIENT_TYPE
	MAPICreationTime = 0x3007 // PR_CREATION_TIME
)

// Property value types (low word of the property tag).
const (
	ptLong    = 0x0003
	ptString8 = 0x001E
	ptUnicode = 0x001F
	ptSystime = 0x0040
	ptBinary  = 0x0102
)

// Recipient types from PR_RECIPIENT_TYPE.
const (
	recipTo  = 1
	recipCc  = 2
	recipBcc = 3
)

// tag builds a full little-endian property tag from id and type.
func tag(prop, typ uint16) uint32 {
	return uint32(prop)<<16 | uint32(typ)
}

// fixedProperties parses a "__properties_version1.0" stream into a map of
// property tag to its 8-byte value field. Records are 16 bytes: tag, flags,
// value. The header is 32 bytes on the message root and 8 bytes inside
// attachment/recipient storages.
func fixedProperties(data []byte, headerLen int) map[uint32][]byte {
	props := make(map[uint32][]byte)
	for i := headerLen; i+16 <= len(data); i += 16 {
		t := leUint32(data[i:])
		value := data[i+8 : i+16]
		props[t] = value
	}
	return props
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	return uint64(leUint32(b)) | uint64(leUint32(b[4:]))<<32
}

// filetimeToTime converts a Windows FILETIME (100ns intervals since
// 1601-01-01 UTC) to a time.Time. Zero and pre-epoch values are absent.
func filetimeToTime(v []byte) *time.Time {
	if len(v) < 8 {
		return nil
	}
	ft := leUint64(v)
	const unixEpochDelta = 116444736000000000
	if ft == 0 || ft < unixEpochDelta {
		return nil
	}
	t := time.Unix(0, int64(ft-unixEpochDelta)*100).UTC()
	return &t
}
