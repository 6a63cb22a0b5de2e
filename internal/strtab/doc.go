// Package strtab provides the persistent string enumeration table shared by every
// encoded index value.
//
// Owners, descriptors and locations repeat across thousands of class files. Encoding
// them as small ids keeps stored values compact; the table maps ids back to strings.
//
//	store, err := strtab.OpenFileStore(filepath.Join(dir, "index.strings"))
//	...
//	table, err := strtab.Open(store)
//	...
//	err = table.View(func() error {
//	    id, err := table.Enumerate("java/lang/String")
//	    ...
//	})
//
// A failed append leaves the table broken: every new string fails with ErrBroken until
// Rebuild resets the ids, after which all encoded values must be regenerated.
package strtab
