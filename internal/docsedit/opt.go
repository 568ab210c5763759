package docsedit

// Opt is an explicitly set-or-unset value. Style fields use it so that
// "set to false" and "leave unchanged" never collapse into the same zero value.
type Opt[T any] struct {
	v  T
	ok bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{v: v, ok: true} }

// OptFrom converts an optional pointer (as decoded from JSON) into an Opt.
func OptFrom[T any](p *T) Opt[T] {
	if p == nil {
		return Opt[T]{}
	}
	return Some(*p)
}

func (o Opt[T]) Get() (T, bool) { return o.v, o.ok }

func (o Opt[T]) IsSet() bool { return o.ok }
