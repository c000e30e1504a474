package native

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Compiler translates WGSL compute kernels to SPIR-V using gogpu/naga.
// It implements gpucore.Compiler.
type Compiler struct{}

// Compile translates WGSL source to SPIR-V bytecode.
func (Compiler) Compile(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("native: shader compilation failed: %w", err)
	}
	return spirv, nil
}
