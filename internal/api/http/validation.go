package http

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

// Request limits
const (
	MaxBodySize    = 8 * 1024 * 1024 // 8MB - inline markup plus script
	MaxLocalsSize  = 64 * 1024       // 64KB - serialized locals
	MaxLocalsDepth = 20
	MaxSteps       = 256
)

// validateScript bounds what a request may ask the page to evaluate.
func validateScript(s *script.Script) error {
	if len(s.Steps) > MaxSteps {
		return fmt.Errorf("%w: %d steps exceeds maximum %d", errBadRequest, len(s.Steps), MaxSteps)
	}
	if len(s.Locals) > 0 {
		data, err := sonic.Marshal(s.Locals)
		if err != nil {
			return fmt.Errorf("%w: locals: %v", errBadRequest, err)
		}
		if len(data) > MaxLocalsSize {
			return fmt.Errorf("%w: locals size %d bytes exceeds maximum %d bytes", errBadRequest, len(data), MaxLocalsSize)
		}
	}
	for name, value := range s.Locals {
		if err := checkDepth(value, 1, MaxLocalsDepth); err != nil {
			return fmt.Errorf("%w: local %s: %v", errBadRequest, name, err)
		}
	}
	return nil
}

func checkDepth(data any, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}
