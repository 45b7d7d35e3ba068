// Package stts751 provides constants for register addresses and bitfields used
// in the operation of the ST STTS751 digital temperature sensor.
package stts751

const (
	// 7-bit I2C address used by the concentrator reference boards.
	AddressDefault = 0x39

	// Expected identification values.
	ManufacturerST = 0x53
	ProductID0     = 0x00 // STTS751-0
	ProductID1     = 0x01 // STTS751-1

	// --- Register sub-addresses (8-bit) ---

	regTempHigh   = 0x00 // R, integer part (two's complement)
	regStatus     = 0x01 // R
	regTempLow    = 0x02 // R, fraction in bits 7..4
	regConfig     = 0x03 // R/W
	regRate       = 0x04 // R/W, conversion rate
	regHighLimitH = 0x05 // R/W
	regHighLimitL = 0x06 // R/W
	regLowLimitH  = 0x07 // R/W
	regLowLimitL  = 0x08 // R/W
	regOneShot    = 0x0F // W
	regThermLimit = 0x20 // R/W
	regThermHyst  = 0x21 // R/W
	regSMBusTO    = 0x22 // R/W

	regProductID      = 0xFD // R
	regManufacturerID = 0xFE // R
	regRevisionID     = 0xFF // R

	// --- STATUS bits (0x01) ---
	statusThermTrip = 1 << 0
	statusLowTrip   = 1 << 5
	statusHighTrip  = 1 << 6
	statusBusy      = 1 << 7

	// --- CONFIG bits (0x03) ---
	confResMask  = 0x0C
	confResShift = 2
	confStop     = 1 << 6
	confEventDis = 1 << 7

	// Highest valid conversion-rate code (32 conversions/s).
	rateMax = 0x09

	// Limit register range in °C.
	limitMin = -64.0
	limitMax = 127.9375
)

// Resolution field encodings, indexed by bit count.
var resBits = map[uint8]byte{
	9:  0x2,
	10: 0x0,
	11: 0x1,
	12: 0x3,
}
