// Package types provides shared type definitions for the classindex MCP server.
//
// # Keys
//
// A Key describes how a name is used at a location inside a compiled class:
//
//	types.ClassKey{}                                 // reference to a class
//	types.FieldKey{Owner: "a/B", IsWrite: true}      // putfield / putstatic
//	types.MethodKey{Owner: "a/B", Desc: "(I)V"}      // call of a/B.name(I)V
//	types.StringConstantKey{}                        // literal string
//	types.ImplicitToStringKey{}                      // value concatenated into a string
//	types.DelegateKey{Inner: types.FieldKey{...}}    // synthetic accessor performing Inner
//
// Keys are comparable values. Each variant has a persisted tag (TagClass..TagDelegate).
//
// # Locations
//
// A location is "memberName:descriptor"; the empty string stands for the class itself.
// A location whose descriptor contains '(' names a method:
//
//	types.FormatLocation("run", "()V") // "run:()V"
//	types.IsMethodLocation("count:I")  // false
//
// # Index
//
// Index is the per-file aggregate name -> key -> location -> count. Value is the slice of
// an Index stored for one name; it is what the codec persists and the searcher reads.
//
//	idx := make(types.Index)
//	idx.Add("java/lang/String", types.ClassKey{}, "run:()V", 1)
package types
