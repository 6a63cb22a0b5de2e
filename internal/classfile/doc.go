// Package classfile parses compiled JVM class files.
//
// Parse reads the constant pool, class header, fields, methods, record components and
// the attributes that carry references (signatures, annotations, type annotations,
// exception tables, local variable tables, bootstrap methods). Method bodies are decoded
// into Instructions with constant pool operands already resolved:
//
//	cf, err := classfile.Parse(data)
//	if err != nil {
//	    return err
//	}
//	for _, m := range cf.Methods {
//	    if m.Code == nil {
//	        continue
//	    }
//	    for _, in := range m.Code.Instructions {
//	        if in.Kind() == classfile.KindMethod {
//	            fmt.Println(in.Member.Owner, in.Member.Name, in.Member.Desc)
//	        }
//	    }
//	}
//
// Short load and store forms and wide-prefixed instructions are normalised to the long
// opcode with an explicit variable index. Labels, stack map frames and line numbers are
// not reported.
package classfile
