package hostaccess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reglet-dev/hostbridge/domain/entities"
)

// ErrMalformedSignature is wrapped by every signature parse failure.
var ErrMalformedSignature = errors.New("malformed signature")

// Type is one parsed type of a signature.
type Type struct {
	// Class is the class name for object types (e.g. "java/lang/Runnable")
	// or the array descriptor (e.g. "[I"). Empty for primitives.
	Class string
	Tag   entities.ValueTag
}

func (t Type) String() string {
	if t.Tag == entities.TagObject {
		return t.Class
	}
	return t.Tag.String()
}

// Signature is a parsed member type descriptor.
type Signature struct {
	Params []Type
	Return Type
	Method bool
}

// ParseSignature parses a JVM-style descriptor: a field type such as "I" or
// "Landroid/os/Handler;", or a method type such as "(Ljava/lang/Runnable;J)Z".
// Only types representable as a HostValue are accepted.
func ParseSignature(s string) (Signature, error) {
	if s == "" {
		return Signature{}, fmt.Errorf("%w: empty", ErrMalformedSignature)
	}

	if s[0] != '(' {
		t, next, err := parseType(s, 0, false)
		if err != nil {
			return Signature{}, err
		}
		if next != len(s) {
			return Signature{}, fmt.Errorf("%w: trailing %q", ErrMalformedSignature, s[next:])
		}
		return Signature{Return: t}, nil
	}

	sig := Signature{Method: true}
	i := 1
	for {
		if i >= len(s) {
			return Signature{}, fmt.Errorf("%w: unterminated parameter list in %q", ErrMalformedSignature, s)
		}
		if s[i] == ')' {
			i++
			break
		}
		t, next, err := parseType(s, i, false)
		if err != nil {
			return Signature{}, err
		}
		sig.Params = append(sig.Params, t)
		i = next
	}

	ret, next, err := parseType(s, i, true)
	if err != nil {
		return Signature{}, err
	}
	if next != len(s) {
		return Signature{}, fmt.Errorf("%w: trailing %q", ErrMalformedSignature, s[next:])
	}
	sig.Return = ret
	return sig, nil
}

func parseType(s string, i int, allowVoid bool) (Type, int, error) {
	if i >= len(s) {
		return Type{}, i, fmt.Errorf("%w: missing type in %q", ErrMalformedSignature, s)
	}
	switch c := s[i]; c {
	case 'I':
		return Type{Tag: entities.TagInt}, i + 1, nil
	case 'J':
		return Type{Tag: entities.TagLong}, i + 1, nil
	case 'Z':
		return Type{Tag: entities.TagBool}, i + 1, nil
	case 'V':
		if !allowVoid {
			return Type{}, i, fmt.Errorf("%w: void only allowed as return type in %q", ErrMalformedSignature, s)
		}
		return Type{Tag: entities.TagVoid}, i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end <= 1 {
			return Type{}, i, fmt.Errorf("%w: bad class type in %q", ErrMalformedSignature, s)
		}
		return Type{Tag: entities.TagObject, Class: s[i+1 : i+end]}, i + end + 1, nil
	case '[':
		// Arrays are objects, so any element type is representable.
		if i+1 < len(s) && strings.IndexByte("BCSFD", s[i+1]) >= 0 {
			return Type{Tag: entities.TagObject, Class: s[i : i+2]}, i + 2, nil
		}
		_, next, err := parseType(s, i+1, false)
		if err != nil {
			return Type{}, i, err
		}
		return Type{Tag: entities.TagObject, Class: s[i:next]}, next, nil
	case 'B', 'C', 'S', 'F', 'D':
		return Type{}, i, fmt.Errorf("%w: type %q has no host value representation", ErrMalformedSignature, string(c))
	default:
		return Type{}, i, fmt.Errorf("%w: unknown type %q in %q", ErrMalformedSignature, string(c), s)
	}
}
