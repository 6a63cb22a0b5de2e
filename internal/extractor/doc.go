// Package extractor builds the reference index of a single class file.
//
// For every name a class mentions it records which key describes the use (class
// reference, field read or write, method call, string literal, string concatenation
// operand, or synthetic accessor delegation) and at which location (member
// "name:descriptor", or "" for the class itself) it occurs, with a count.
//
// Two rewrites keep locations meaningful to a reader of the source:
//
//   - Synthetic accessors whose body only forwards its parameters to a single field or
//     method access are recorded as DelegateKey entries, so a search for the accessed
//     member can follow callers of the accessor.
//   - References made inside a lambda body declared in the same class are moved to the
//     locations that create the lambda.
//
// Usage:
//
//	ex := extractor.New(extractor.Options{})
//	res, err := ex.Extract(data)
//	if err != nil {
//	    return err
//	}
//	for name, value := range res.Index {
//	    ...
//	}
package extractor
