package classfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/classindex-mcp/internal/classfile"
	"github.com/dshills/classindex-mcp/internal/classfile/classfiletest"
)

var lambdaMetafactory = classfile.Handle{
	Kind:  classfile.HInvokeStatic,
	Owner: "java/lang/invoke/LambdaMetafactory",
	Name:  "metafactory",
	Desc:  "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;",
}

func TestParseHeader(t *testing.T) {
	data := classfiletest.NewClass("a/Foo", "a/Base").
		Interfaces("java/lang/Runnable", "a/Marker").
		Signature("La/Base<Ljava/lang/String;>;Ljava/lang/Runnable;La/Marker;").
		Bytes()

	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(61), cf.MajorVersion)
	assert.Equal(t, "a/Foo", cf.Name)
	assert.Equal(t, "a/Base", cf.SuperName)
	assert.Equal(t, []string{"java/lang/Runnable", "a/Marker"}, cf.Interfaces)
	assert.Equal(t, "La/Base<Ljava/lang/String;>;Ljava/lang/Runnable;La/Marker;", cf.Signature)
}

func TestParseErrors(t *testing.T) {
	_, err := classfile.Parse([]byte{0xCA, 0xFE})
	assert.ErrorIs(t, err, classfile.ErrTruncated)

	_, err = classfile.Parse([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 61})
	assert.ErrorIs(t, err, classfile.ErrBadMagic)

	data := classfiletest.NewClass("a/Foo", "java/lang/Object").Bytes()
	for _, n := range []int{10, len(data) / 2, len(data) - 1} {
		_, err := classfile.Parse(data[:n])
		assert.Error(t, err, "truncated at %d", n)
	}
}

func TestParseFieldsAndConstants(t *testing.T) {
	cb := classfiletest.NewClass("a/Foo", "java/lang/Object")
	cb.Field(0x0019, "MAX", "J").ConstantValue(int64(1) << 40)
	cb.Field(0x0019, "NAME", "Ljava/lang/String;").ConstantValue("héllo\u0000𝄞")
	cb.Field(0x0002, "items", "Ljava/util/List;").Signature("Ljava/util/List<La/Item;>;").
		Annotation(classfile.Annotation{Descriptor: "La/Ann;"})

	cf, err := classfile.Parse(cb.Bytes())
	require.NoError(t, err)
	require.Len(t, cf.Fields, 3)
	assert.Equal(t, int64(1)<<40, cf.Fields[0].Value)
	assert.Equal(t, "héllo\u0000𝄞", cf.Fields[1].Value)
	assert.Equal(t, "Ljava/util/List<La/Item;>;", cf.Fields[2].Signature)
	require.Len(t, cf.Fields[2].Annotations, 1)
	assert.Equal(t, "La/Ann;", cf.Fields[2].Annotations[0].Descriptor)
}

func TestParseInstructions(t *testing.T) {
	cb := classfiletest.NewClass("a/Foo", "java/lang/Object")
	code := cb.Method(0x0009, "run", "(JI)V").Code()
	// lload_0, iload_3
	code.Raw(0x1e, 0x1d)
	code.Var(classfile.ALOAD, 300)
	// nop, then tableswitch at offset 7 needing no padding
	code.Raw(0x00, 0xaa)
	code.Raw(0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 2)
	code.Raw(0, 0, 0, 0, 0, 0, 0, 0)
	code.Type(classfile.CHECKCAST, "a/Bar")
	code.Field(classfile.PUTSTATIC, "a/Bar", "x", "I")
	code.Method(classfile.INVOKEINTERFACE, "a/Itf", "go", "()V", true)
	code.Ldc(classfile.ObjectType("a/Baz"))
	code.Ldc(2.5)
	code.MultiANewArray("[[La/Cell;", 2)
	code.Insn(classfile.RETURN)

	cf, err := classfile.Parse(cb.Bytes())
	require.NoError(t, err)
	require.Len(t, cf.Methods, 1)
	m := cf.Methods[0]
	require.NotNil(t, m.Code)
	assert.True(t, m.IsStatic())
	insns := m.Code.Instructions
	require.Len(t, insns, 12)

	assert.Equal(t, classfile.LLOAD, insns[0].Opcode)
	assert.Equal(t, 0, insns[0].Var)
	assert.Equal(t, classfile.ILOAD, insns[1].Opcode)
	assert.Equal(t, 3, insns[1].Var)
	assert.Equal(t, classfile.ALOAD, insns[2].Opcode)
	assert.Equal(t, 300, insns[2].Var)
	assert.Equal(t, classfile.TABLESWITCH, insns[4].Opcode)
	assert.Equal(t, classfile.KindSwitch, insns[4].Kind())
	assert.Equal(t, "a/Bar", insns[5].TypeName)
	assert.Equal(t, classfile.KindField, insns[6].Kind())
	assert.Equal(t, classfile.MemberRef{Owner: "a/Bar", Name: "x", Desc: "I"}, insns[6].Member)
	assert.True(t, insns[7].Member.IsInterface)
	assert.Equal(t, classfile.Type{Descriptor: "La/Baz;"}, insns[8].Constant)
	assert.Equal(t, 2.5, insns[9].Constant)
	assert.Equal(t, "[[La/Cell;", insns[10].TypeName)
	assert.Equal(t, 2, insns[10].Dims)
	assert.True(t, insns[11].Opcode.IsReturn())
}

func TestParseInvokeDynamic(t *testing.T) {
	cb := classfiletest.NewClass("a/Foo", "java/lang/Object")
	impl := classfile.Handle{Kind: classfile.HInvokeStatic, Owner: "a/Foo", Name: "lambda$run$0", Desc: "()V"}
	cb.Method(0x0001, "run", "()V").Code().
		InvokeDynamic("run", "()Ljava/lang/Runnable;", lambdaMetafactory,
			classfile.Type{Descriptor: "()V"}, impl, classfile.Type{Descriptor: "()V"}).
		Insn(classfile.RETURN)

	cf, err := classfile.Parse(cb.Bytes())
	require.NoError(t, err)
	in := cf.Methods[0].Code.Instructions[0]
	require.Equal(t, classfile.KindInvokeDynamic, in.Kind())
	require.NotNil(t, in.Dynamic)
	assert.Equal(t, "run", in.Dynamic.Name)
	assert.Equal(t, lambdaMetafactory, in.Dynamic.Bootstrap)
	require.Len(t, in.Dynamic.Args, 3)
	assert.Equal(t, impl, in.Dynamic.Args[1])
	assert.True(t, in.Dynamic.Args[0].(classfile.Type).IsMethod())
}

func TestParseAttributes(t *testing.T) {
	cb := classfiletest.NewClass("a/Rec", "java/lang/Record")
	cb.Annotation(classfile.Annotation{
		Descriptor: "La/Outer;",
		Elements: []classfile.Element{
			{Name: "mode", Value: classfile.ElementValue{Tag: 'e', EnumType: "La/Mode;", EnumName: "FAST"}},
			{Name: "type", Value: classfile.ElementValue{Tag: 'c', Class: "La/Target;"}},
			{Name: "inner", Value: classfile.ElementValue{Tag: '@', Annotation: &classfile.Annotation{Descriptor: "La/Inner;"}}},
			{Name: "ids", Value: classfile.ElementValue{Tag: '[', Array: []classfile.ElementValue{
				{Tag: 'I', Const: int32(7)}, {Tag: 's', Const: "x"},
			}}},
		},
	})
	cb.TypeAnnotation(classfile.Annotation{Descriptor: "La/NonNull;"})
	cb.Record("value", "Ljava/util/List;", "Ljava/util/List<La/Item;>;")
	m := cb.Method(0x0001, "get", "(Ljava/lang/String;)V").Exceptions("java/io/IOException").
		ParameterAnnotation(0, classfile.Annotation{Descriptor: "La/Param;"})
	m.Code().
		LocalVariable("xs", "Ljava/util/List;", "Ljava/util/List<La/Local;>;", 1).
		TryCatch("a/Failure").
		TryCatch("").
		TypeAnnotation(classfile.Annotation{Descriptor: "La/Insn;"}).
		Insn(classfile.RETURN)
	cb.Method(0x0401, "value", "()I").AnnotationDefault(classfile.ElementValue{Tag: 'I', Const: int32(3)})

	cf, err := classfile.Parse(cb.Bytes())
	require.NoError(t, err)

	require.Len(t, cf.Annotations, 1)
	els := cf.Annotations[0].Elements
	require.Len(t, els, 4)
	assert.Equal(t, "FAST", els[0].Value.EnumName)
	assert.Equal(t, "La/Target;", els[1].Value.Class)
	assert.Equal(t, "La/Inner;", els[2].Value.Annotation.Descriptor)
	assert.Equal(t, int32(7), els[3].Value.Array[0].Const)
	assert.Equal(t, "x", els[3].Value.Array[1].Const)

	require.Len(t, cf.TypeAnnotations, 1)
	assert.Equal(t, uint8(0x10), cf.TypeAnnotations[0].TargetType)

	require.Len(t, cf.RecordComponents, 1)
	assert.Equal(t, "Ljava/util/List<La/Item;>;", cf.RecordComponents[0].Signature)

	get := cf.Methods[0]
	assert.Equal(t, []string{"java/io/IOException"}, get.Exceptions)
	require.Len(t, get.ParameterAnnotations, 1)
	assert.Equal(t, "La/Param;", get.ParameterAnnotations[0][0].Descriptor)
	code := get.Code
	require.Len(t, code.Handlers, 2)
	assert.Equal(t, "a/Failure", code.Handlers[0].CatchType)
	assert.Empty(t, code.Handlers[1].CatchType)
	require.Len(t, code.LocalVariables, 1)
	assert.Equal(t, "Ljava/util/List;", code.LocalVariables[0].Descriptor)
	assert.Equal(t, "Ljava/util/List<La/Local;>;", code.LocalVariables[0].Signature)
	require.Len(t, code.TypeAnnotations, 1)
	assert.Equal(t, "La/Insn;", code.TypeAnnotations[0].Descriptor)

	value := cf.Methods[1]
	assert.Nil(t, value.Code)
	require.NotNil(t, value.AnnotationDefault)
	assert.Equal(t, int32(3), value.AnnotationDefault.Const)
}

func TestBadOpcode(t *testing.T) {
	cb := classfiletest.NewClass("a/Foo", "java/lang/Object")
	cb.Method(0x0001, "run", "()V").Code().Raw(0xca)
	_, err := classfile.Parse(cb.Bytes())
	assert.ErrorIs(t, err, classfile.ErrBadOpcode)
}

func TestModifiedUTF8(t *testing.T) {
	for _, s := range []string{"", "plain", "é", "\u0000", "日本", "𝄞"} {
		enc := classfile.EncodeModifiedUTF8(s)
		assert.NotContains(t, string(enc), "\x00", s)
	}
}
