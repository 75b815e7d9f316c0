// Package errd provides a deferred error wrapping helper.
package errd

import "fmt"

// Wrap wraps *err with fmt.Errorf if *err is non nil.
// Intended for use with defer and a named error return.
// Inspired by https://github.com/golang/go/issues/32676
func Wrap(err *error, f string, v ...interface{}) {
	if *err != nil {
		*err = fmt.Errorf(f+": %w", append(v, *err)...)
	}
}
