package compute

import (
	"fmt"
	"strconv"
	"strings"
)

// TensorDescriptor describes one kernel argument: an ordered shape, an
// element datatype name, and a symbolic name. Descriptors are parsed once
// from kernel metadata and immutable thereafter.
type TensorDescriptor struct {
	// Name is the argument's symbolic name.
	Name string

	// DType is the datatype name. Its trailing decimal digits encode the
	// element bit width (e.g. "float32", "int8").
	DType string

	// Shape is the ordered sequence of positive dimension extents.
	Shape []int

	elemBytes int
}

// ElementCount returns the product of the shape extents. The product of an
// empty shape is 1.
func (t *TensorDescriptor) ElementCount() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= int64(d)
	}
	return n
}

// ElementBytes returns the byte size of one element, derived from the
// datatype's trailing bit-width numeral.
func (t *TensorDescriptor) ElementBytes() int {
	return t.elemBytes
}

// SizeInBytes returns the total byte size of the tensor.
func (t *TensorDescriptor) SizeInBytes() int64 {
	return t.ElementCount() * int64(t.elemBytes)
}

// dtypeSize parses the trailing decimal digits of a datatype name as a bit
// width and returns the element size in bytes. The bit width must be
// present and divisible by 8.
func dtypeSize(name string) (int, error) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, fmt.Errorf("%w: %q has no trailing bit width", ErrInvalidDType, name)
	}
	bits, err := strconv.Atoi(name[i:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDType, name, err)
	}
	if bits == 0 || bits%8 != 0 {
		return 0, fmt.Errorf("%w: %q bit width %d is not divisible by 8", ErrInvalidDType, name, bits)
	}
	return bits / 8, nil
}

// parseTensorSpec parses one "shape-dims/dtype/name" spec, with shape dims
// hyphen-joined positive integers.
func parseTensorSpec(spec string) (TensorDescriptor, error) {
	parts := strings.Split(strings.TrimSpace(spec), "/")
	if len(parts) != 3 {
		return TensorDescriptor{}, fmt.Errorf("%w: tensor spec %q", ErrInvalidMetadata, spec)
	}

	dims := strings.Split(parts[0], "-")
	shape := make([]int, len(dims))
	for i, d := range dims {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			return TensorDescriptor{}, fmt.Errorf("%w: shape dimension %q in %q", ErrInvalidMetadata, d, spec)
		}
		shape[i] = n
	}

	dtype := parts[1]
	elemBytes, err := dtypeSize(dtype)
	if err != nil {
		return TensorDescriptor{}, err
	}

	name := parts[2]
	if name == "" {
		return TensorDescriptor{}, fmt.Errorf("%w: empty argument name in %q", ErrInvalidMetadata, spec)
	}

	return TensorDescriptor{
		Name:      name,
		DType:     dtype,
		Shape:     shape,
		elemBytes: elemBytes,
	}, nil
}

// parseTensorList parses a comma-separated list of tensor specs.
func parseTensorList(list string) ([]TensorDescriptor, error) {
	var out []TensorDescriptor
	for _, spec := range strings.Split(list, ",") {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		t, err := parseTensorSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
