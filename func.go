// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import "context"

// Func is one stage of a probe pipeline: it consumes an A and yields a B.
//
// A stage that receives a closeable resource (a [net.Conn], a [*Conn])
// and fails must close it before returning. Composed pipelines then never
// leak a connection when a later stage fails.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter turns a plain function into a [Func].
//
// Fan-out branches and test doubles are usually written this way.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}

// Unit is the input of a [Func] whose arguments are already bound, such as
// an [*Operation] or a stage produced by [Apply].
type Unit struct{}
