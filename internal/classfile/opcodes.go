package classfile

// Opcode is a JVM instruction opcode.
type Opcode uint8

// Opcodes referenced by name. Short load/store forms (ILOAD_0 and friends) never appear in
// decoded code; they are reported as their long form with an explicit variable index.
const (
	NOP             Opcode = 0x00
	LDC             Opcode = 0x12
	LDC_W           Opcode = 0x13
	LDC2_W          Opcode = 0x14
	ILOAD           Opcode = 0x15
	LLOAD           Opcode = 0x16
	FLOAD           Opcode = 0x17
	DLOAD           Opcode = 0x18
	ALOAD           Opcode = 0x19
	ISTORE          Opcode = 0x36
	ASTORE          Opcode = 0x3a
	IINC            Opcode = 0x84
	GOTO            Opcode = 0xa7
	RET             Opcode = 0xa9
	TABLESWITCH     Opcode = 0xaa
	LOOKUPSWITCH    Opcode = 0xab
	IRETURN         Opcode = 0xac
	LRETURN         Opcode = 0xad
	FRETURN         Opcode = 0xae
	DRETURN         Opcode = 0xaf
	ARETURN         Opcode = 0xb0
	RETURN          Opcode = 0xb1
	GETSTATIC       Opcode = 0xb2
	PUTSTATIC       Opcode = 0xb3
	GETFIELD        Opcode = 0xb4
	PUTFIELD        Opcode = 0xb5
	INVOKEVIRTUAL   Opcode = 0xb6
	INVOKESPECIAL   Opcode = 0xb7
	INVOKESTATIC    Opcode = 0xb8
	INVOKEINTERFACE Opcode = 0xb9
	INVOKEDYNAMIC   Opcode = 0xba
	NEW             Opcode = 0xbb
	NEWARRAY        Opcode = 0xbc
	ANEWARRAY       Opcode = 0xbd
	ATHROW          Opcode = 0xbf
	CHECKCAST       Opcode = 0xc0
	INSTANCEOF      Opcode = 0xc1
	WIDE            Opcode = 0xc4
	MULTIANEWARRAY  Opcode = 0xc5
	GOTO_W          Opcode = 0xc8
	JSR_W           Opcode = 0xc9

	iload0  Opcode = 0x1a
	astore3 Opcode = 0x4e
	istore0 Opcode = 0x3b
)

// IsLoad reports whether op loads a local variable.
func (op Opcode) IsLoad() bool { return op >= ILOAD && op <= ALOAD }

// IsStore reports whether op stores a local variable.
func (op Opcode) IsStore() bool { return op >= ISTORE && op <= ASTORE }

// IsReturn reports whether op is one of the return instructions.
func (op Opcode) IsReturn() bool { return op >= IRETURN && op <= RETURN }

// IsFieldWrite reports whether op writes a field.
func (op Opcode) IsFieldWrite() bool { return op == PUTFIELD || op == PUTSTATIC }

// operandSize holds the fixed operand length for each opcode; -1 marks variable-length or
// invalid opcodes, which the decoder handles explicitly.
var operandSize = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for op := 0x00; op <= 0x0f; op++ {
		t[op] = 0
	}
	t[0x10] = 1 // bipush
	t[0x11] = 2 // sipush
	t[LDC] = 1
	t[LDC_W] = 2
	t[LDC2_W] = 2
	for op := ILOAD; op <= ALOAD; op++ {
		t[op] = 1
	}
	for op := 0x1a; op <= 0x35; op++ {
		t[op] = 0
	}
	for op := ISTORE; op <= ASTORE; op++ {
		t[op] = 1
	}
	for op := 0x3b; op <= 0x83; op++ {
		t[op] = 0
	}
	t[IINC] = 2
	for op := 0x85; op <= 0x98; op++ {
		t[op] = 0
	}
	for op := 0x99; op <= 0xa8; op++ {
		t[op] = 2
	}
	t[RET] = 1
	for op := IRETURN; op <= RETURN; op++ {
		t[op] = 0
	}
	for op := GETSTATIC; op <= INVOKESTATIC; op++ {
		t[op] = 2
	}
	t[INVOKEINTERFACE] = 4
	t[INVOKEDYNAMIC] = 4
	t[NEW] = 2
	t[NEWARRAY] = 1
	t[ANEWARRAY] = 2
	t[0xbe] = 0 // arraylength
	t[ATHROW] = 0
	t[CHECKCAST] = 2
	t[INSTANCEOF] = 2
	t[0xc2] = 0 // monitorenter
	t[0xc3] = 0 // monitorexit
	t[MULTIANEWARRAY] = 3
	t[0xc6] = 2 // ifnull
	t[0xc7] = 2 // ifnonnull
	t[GOTO_W] = 4
	t[JSR_W] = 4
	return t
}()

// Access flags used by the indexer.
const (
	AccStatic    uint16 = 0x0008
	AccSynthetic uint16 = 0x1000
)

// Method handle reference kinds.
const (
	HGetField         uint8 = 1
	HGetStatic        uint8 = 2
	HPutField         uint8 = 3
	HPutStatic        uint8 = 4
	HInvokeVirtual    uint8 = 5
	HInvokeStatic     uint8 = 6
	HInvokeSpecial    uint8 = 7
	HNewInvokeSpecial uint8 = 8
	HInvokeInterface  uint8 = 9
)
