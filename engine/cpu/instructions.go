package cpu

import "github.com/kallendev/gbcore/engine/bit"

func (c *CPU) pushStack(r uint16) {
	c.sp--
	c.memory.Write(c.sp, bit.Low(r))
	c.sp--
	c.memory.Write(c.sp, bit.High(r))
}

func (c *CPU) popStack() uint16 {
	high := c.memory.Read(c.sp)
	c.sp++
	low := c.memory.Read(c.sp)
	c.sp++

	return bit.Combine(high, low)
}

func (c *CPU) inc(r *uint8) {
	*r++
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	*r--
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0xF)
	c.setFlag(subFlag)
}

func (c *CPU) rlc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | (value >> 7)
	*r = value
	// Z follows the result, except for register A, where it is always cleared (RLCA).
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rl(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag)

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | carry
	*r = value
	// Z follows the result, except for register A, where it is always cleared (RLA).
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rrc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | ((value & 1) << 7)
	*r = value
	// Z follows the result, except for register A, where it is always cleared (RRCA).
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rr(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag) << 7

	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | carry
	*r = value
	// Z follows the result, except for register A, where it is always cleared (RRA).
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

// add sets the result of adding an 8 bit register to A, while setting all relevant flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	carry := (uint16(a) + uint16(value)) > 0xFF
	halfCarry := (a&0xF)+(value&0xF) > 0xF

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.a = result
}

// addToHL sets the result of adding a 16 bit register to HL, while setting relevant flags.
func (c *CPU) addToHL(reg uint16) {
	hl := bit.Combine(c.h, c.l)
	result := hl + reg

	carry := (uint32(hl) + uint32(reg)) > 0xFFFF
	halfCarry := (hl&0xFFF)+(reg&0xFFF) > 0xFFF

	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.h = bit.High(result)
	c.l = bit.Low(result)
}

// sub will subtract the value from register A and set all relevant flags.
func (c *CPU) sub(value uint8) {
	a := c.a
	c.a = a - value

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// sbc will subtract the value and carry (1 if set, 0 otherwise) from the register A.
func (c *CPU) sbc(value uint8) {
	a := c.a
	carry := 0
	if c.isSetFlag(carryFlag) {
		carry = 1
	}

	result := int(c.a) - int(value) - carry
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, result < 0)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF)-carry < 0)
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

// jr performs a relative jump using the immediate value as a signed byte offset.
func (c *CPU) jr() {
	offset := int8(c.peekImmediate())
	c.pc = uint16(int32(c.pc) + int32(offset))
}

// jp performs an absolute jump to the immediate 16 bit address.
func (c *CPU) jp() {
	c.pc = c.peekImmediateWord()
}

// call pushes PC and jumps to address, used for CALL and the RST vectors.
func (c *CPU) call(address uint16) {
	c.pushStack(c.pc)
	c.pc = address
}

// rst is CALL to a fixed low-page vector.
func (c *CPU) rst(address uint16) {
	c.call(address)
}

// ret pops the return address off the stack into PC.
func (c *CPU) ret() {
	c.pc = c.popStack()
}

// readSignedImmediate fetches the byte at PC, advances PC past it, and
// interprets it as a signed offset (used by ADD SP,n and LD HL,SP+n).
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

// adc adds the value and the carry flag to A, setting all relevant flags.
func (c *CPU) adc(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := uint16(a) + uint16(value) + uint16(carry)

	c.setFlagToCondition(zeroFlag, uint8(result) == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (a&0xF)+(value&0xF)+carry > 0xF)
	c.setFlagToCondition(carryFlag, result > 0xFF)

	c.a = uint8(result)
}

// cp compares the value against A, setting flags as sub would without
// storing the result.
func (c *CPU) cp(value uint8) {
	a := c.a
	c.sub(value)
	c.a = a
}

// daa adjusts A into packed BCD after an 8 bit addition or subtraction.
func (c *CPU) daa() {
	a := c.a
	var adjust uint8
	carry := c.isSetFlag(carryFlag)

	if c.isSetFlag(halfCarryFlag) || (!c.isSetFlag(subFlag) && (a&0xF) > 9) {
		adjust |= 0x06
	}
	if carry || (!c.isSetFlag(subFlag) && a > 0x99) {
		adjust |= 0x60
		carry = true
	}

	if c.isSetFlag(subFlag) {
		a -= adjust
	} else {
		a += adjust
	}

	c.a = a
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, a == 0)
}

// bit tests bit idx of value, setting the zero flag to its complement.
func (c *CPU) bit(idx uint8, value uint8) {
	c.setFlagToCondition(zeroFlag, (value>>idx)&1 == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

// set sets bit idx of *r.
func (c *CPU) set(idx uint8, r *uint8) {
	*r |= 1 << idx
}

// res clears bit idx of *r.
func (c *CPU) res(idx uint8, r *uint8) {
	*r &^= 1 << idx
}

// swap exchanges the high and low nibbles of *r.
func (c *CPU) swap(r *uint8) {
	value := *r
	value = (value << 4) | (value >> 4)
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

// sla shifts *r left by one, feeding a 0 into bit 0 and the lost bit 7 into carry.
func (c *CPU) sla(r *uint8) {
	value := *r
	c.setFlagToCondition(carryFlag, value&0x80 != 0)
	value <<= 1
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

// sra shifts *r right by one, preserving bit 7 and feeding the lost bit 0 into carry.
func (c *CPU) sra(r *uint8) {
	value := *r
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	value = (value >> 1) | (value & 0x80)
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

// srl shifts *r right by one, feeding a 0 into bit 7 and the lost bit 0 into carry.
func (c *CPU) srl(r *uint8) {
	value := *r
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	value >>= 1
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}
