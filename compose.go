// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import "context"

// Compose2 returns the stage running first and then second on its output.
//
// When first fails, second does not run.
func Compose2[A, B, C any](first Func[A, B], second Func[B, C]) Func[A, C] {
	return FuncAdapter[A, C](func(ctx context.Context, input A) (C, error) {
		mid, err := first.Call(ctx, input)
		if err != nil {
			var zero C
			return zero, err
		}
		return second.Call(ctx, mid)
	})
}

// Compose3 is like [Compose2] with three stages, for example connect,
// then TLS, then a handshake script.
func Compose3[A, B, C, D any](first Func[A, B], second Func[B, C], third Func[C, D]) Func[A, D] {
	return Compose2(Compose2(first, second), third)
}

// Apply binds input to fn. The result ignores its [Unit] argument, which
// makes a pipeline plus its [Endpoint] a branch for [JoinAll].
func Apply[A, B any](fn Func[A, B], input A) Func[Unit, B] {
	return FuncAdapter[Unit, B](func(ctx context.Context, _ Unit) (B, error) {
		return fn.Call(ctx, input)
	})
}
