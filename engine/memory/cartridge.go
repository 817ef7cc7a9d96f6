package memory

import (
	"fmt"
	"log/slog"

	"github.com/kallendev/gbcore/engine/util"
)

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// nintendoLogo is the 48-byte bitmap every cartridge header must repeat at
// 0x104-0x133; real hardware refuses to boot if it doesn't match.
var nintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83,
	0x00, 0x0C, 0x00, 0x0D, 0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E,
	0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99, 0xBB, 0xBB, 0x67, 0x63,
	0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// MBCType identifies which bank-controller chip a cartridge's header
// requests. Selection is derived from the cartridge-type byte (0x147); see
// cartTypeToMBC.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// cartTypeToMBC maps the cartridge-type header byte to the MBC chip it
// requests plus battery/RTC/rumble presence. Unlisted bytes resolve to
// MBCUnknownType, which the caller must refuse to run.
func cartTypeToMBC(cartType uint8) (mbcType MBCType, hasBattery, hasRTC, hasRumble bool) {
	switch cartType {
	case 0x00:
		return NoMBCType, false, false, false
	case 0x01, 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F:
		return MBC3Type, true, true, false
	case 0x10:
		return MBC3Type, true, true, false
	case 0x11:
		return MBC3Type, false, false, false
	case 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19, 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

// ramBankCountFromHeader maps the RAM-size header byte (0x149) to a number
// of 8KB banks.
func ramBankCountFromHeader(ramSize uint8) uint8 {
	switch ramSize {
	case 0x00:
		return 0
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
	cgbFlag      uint8
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes.
func NewCartridgeWithData(bytes []byte) *Cartridge {
	titleBytes := bytes[titleAddress : titleAddress+titleLength]
	mbcType, hasBattery, hasRTC, hasRumble := cartTypeToMBC(bytes[cartridgeTypeAddress])

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		headerChecksum: util.CombineBytes(bytes[headerChecksumAddress+1], bytes[headerChecksumAddress]),
		globalChecksum: util.CombineBytes(bytes[globalChecksumAddress+1], bytes[globalChecksumAddress]),
		version:        bytes[versionNumberAddress],
		cartType:       bytes[cartridgeTypeAddress],
		romSize:        bytes[romSizeAddress],
		ramSize:        bytes[ramSizeAddress],
		mbcType:        mbcType,
		hasBattery:     hasBattery,
		hasRTC:         hasRTC,
		hasRumble:      hasRumble,
		ramBankCount:   ramBankCountFromHeader(bytes[ramSizeAddress]),
		cgbFlag:        bytes[cgbFlagAddress],
	}

	copy(cart.data, bytes)

	if err := cart.validateHeader(bytes); err != nil {
		slog.Warn("cartridge header validation failed, proceeding anyway", "title", cart.title, "error", err)
	}

	if mbcType == MBCUnknownType {
		slog.Warn("unrecognized cartridge type byte", "cartType", fmt.Sprintf("0x%02X", cart.cartType))
	}

	return cart
}

// validateHeader checks the Nintendo logo bitmap and the header checksum.
// Real hardware refuses to boot on mismatch; this core only warns, since ROM
// validity is out of its scope.
func (c *Cartridge) validateHeader(bytes []byte) error {
	for i := 0; i < len(nintendoLogo); i++ {
		if bytes[logoAddress+i] != nintendoLogo[i] {
			return fmt.Errorf("nintendo logo mismatch at offset %d", i)
		}
	}

	var sum uint8
	for i := titleAddress; i < headerChecksumAddress; i++ {
		sum = sum - bytes[i] - 1
	}
	stored := bytes[headerChecksumAddress]
	if sum != stored {
		return fmt.Errorf("header checksum mismatch: computed 0x%02X, stored 0x%02X", sum, stored)
	}

	return nil
}

// IsCGB reports whether the header requests CGB (or CGB-enhanced) mode.
func (c *Cartridge) IsCGB() bool {
	return c.cgbFlag == 0x80 || c.cgbFlag == 0xC0
}

// Title returns the cleaned cartridge title from the header.
func (c *Cartridge) Title() string {
	return c.title
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte ignores the value: it leaves the cartridge data unchanged and returns the byte already
// stored at the specified address.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
