// Package codec serialises index keys and values.
//
// Keys are written as a varint tag followed by the variant payload; a DelegateKey
// recurses into its inner key. Unknown tags fail with ErrUnknownKeyTag so the caller
// can schedule a rebuild instead of guessing.
//
// Strings inside keys and locations go through a StringCodec: RawStrings stores them
// inline, EnumeratedStrings stores ids from a shared table. FormatVersion must change
// whenever the layout does.
package codec
