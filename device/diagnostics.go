package device

import (
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
)

// Diagnostics selects how much driver-side validation the Context requests from the loader
type Diagnostics uint32

const (
	// DiagnosticsNone creates the instance without layers or a debug messenger
	DiagnosticsNone Diagnostics = iota
	// DiagnosticsValidation enables the Khronos validation layer and logs its
	// warnings and errors
	DiagnosticsValidation
	// DiagnosticsValidationPerformance adds performance warnings to DiagnosticsValidation
	DiagnosticsValidationPerformance
)

const ValidationLayerName = "VK_LAYER_KHRONOS_validation"

var diagnosticsMapping = make(map[Diagnostics]string)

func (d Diagnostics) String() string {
	return diagnosticsMapping[d]
}

func init() {
	diagnosticsMapping[DiagnosticsNone] = "DiagnosticsNone"
	diagnosticsMapping[DiagnosticsValidation] = "DiagnosticsValidation"
	diagnosticsMapping[DiagnosticsValidationPerformance] = "DiagnosticsValidationPerformance"
}

// ParseDiagnostics accepts the lower-case level names used on the command line
func ParseDiagnostics(name string) (Diagnostics, bool) {
	switch name {
	case "", "none":
		return DiagnosticsNone, true
	case "validation":
		return DiagnosticsValidation, true
	case "performance":
		return DiagnosticsValidationPerformance, true
	}

	return DiagnosticsNone, false
}

func (d Diagnostics) messageTypes() ext_debug_utils.DebugUtilsMessageTypeFlags {
	types := ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation
	if d == DiagnosticsValidationPerformance {
		types |= ext_debug_utils.TypePerformance
	}
	return types
}
