package confirm

import "maps"

// Params are the arguments of the guarded action. They are stored with the
// pending confirmation and handed back to the handler unchanged.
type Params map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Text is either a literal string or a function of the confirmation params.
// Computed text is evaluated only when a prompt is rendered.
type Text struct {
	static  string
	compute func(Params) string
}

func StaticText(s string) Text {
	return Text{static: s}
}

func ComputedText(fn func(Params) string) Text {
	return Text{compute: fn}
}

// IsSet reports whether the text is a non-empty literal or a function.
func (t Text) IsSet() bool {
	return t.compute != nil || t.static != ""
}

func (t Text) IsComputed() bool {
	return t.compute != nil
}

func (t Text) Resolve(params Params) string {
	if t.compute != nil {
		return t.compute(params.Clone())
	}
	return t.static
}
