// Package descriptor reads JVM type descriptors and generic signatures.
//
// Descriptors ("I", "[Ljava/lang/String;", "(JLa/B;)V") are parsed strictly and
// malformed input is reported with ErrMalformed. Generic signatures are scanned
// leniently by Scanner, which reports every referenced class name in internal form
// ("java/util/Map$Entry") and stops quietly on input it cannot parse.
package descriptor
