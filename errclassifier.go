// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"errors"

	"github.com/bassosimone/errclass"
)

// ErrClassifier classifies errors into categorical strings for logging.
//
// Implementations map errors to short labels (e.g., "ETIMEDOUT",
// "ECONNRESET"). Logged labels complement the [ErrorKind] of an [*Error],
// which is what callers branch on.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier labels nil as "" and other errors using
// [errclass.New] on the innermost cause, so an [*Error] wrapping a
// timeout is still labeled as a timeout.
var DefaultErrClassifier = ErrClassifierFunc(func(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		err = e.Err
	}
	return errclass.New(err)
})
