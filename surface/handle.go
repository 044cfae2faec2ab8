// Package surface turns native window handles into Vulkan surfaces. Windowing
// integrations register a Creator for each platform they can serve.
package surface

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformWin32
	PlatformXlib
	PlatformXcb
	PlatformWayland
	PlatformMetal
	PlatformAndroid
	// PlatformCustom carries a toolkit-specific window value, such as an SDL window
	PlatformCustom
)

var platformToString = map[Platform]string{
	PlatformUnknown: "Unknown",
	PlatformWin32:   "Win32",
	PlatformXlib:    "Xlib",
	PlatformXcb:     "Xcb",
	PlatformWayland: "Wayland",
	PlatformMetal:   "Metal",
	PlatformAndroid: "Android",
	PlatformCustom:  "Custom",
}

func (p Platform) String() string {
	str, ok := platformToString[p]
	if !ok {
		return fmt.Sprintf("Platform(%d)", int(p))
	}
	return str
}

// Handle identifies a native window. Display and Window hold the platform's two raw
// handles, and platforms with a single handle leave Display zero.
type Handle struct {
	Platform Platform
	Display  uintptr
	Window   uintptr
	Custom   any
}

func Win32(hinstance, hwnd uintptr) Handle {
	return Handle{Platform: PlatformWin32, Display: hinstance, Window: hwnd}
}

func Xlib(display, window uintptr) Handle {
	return Handle{Platform: PlatformXlib, Display: display, Window: window}
}

func Xcb(connection, window uintptr) Handle {
	return Handle{Platform: PlatformXcb, Display: connection, Window: window}
}

func Wayland(display, surface uintptr) Handle {
	return Handle{Platform: PlatformWayland, Display: display, Window: surface}
}

func Metal(layer uintptr) Handle {
	return Handle{Platform: PlatformMetal, Window: layer}
}

func Android(window uintptr) Handle {
	return Handle{Platform: PlatformAndroid, Window: window}
}

func Custom(window any) Handle {
	return Handle{Platform: PlatformCustom, Custom: window}
}

func (h Handle) needsDisplay() bool {
	switch h.Platform {
	case PlatformWin32, PlatformXlib, PlatformXcb, PlatformWayland:
		return true
	}
	return false
}

// Validate checks that the handles the platform needs are set
func (h Handle) Validate() error {
	if h.Platform == PlatformCustom {
		if h.Custom == nil {
			return errors.New("custom surface handle has no window")
		}
		return nil
	}

	if _, ok := platformToString[h.Platform]; !ok || h.Platform == PlatformUnknown {
		return errors.Wrapf(ErrUnsupportedPlatform, "%s", h.Platform)
	}

	if h.Window == 0 {
		return errors.Newf("%s surface handle has no window", h.Platform)
	}
	if h.needsDisplay() && h.Display == 0 {
		return errors.Newf("%s surface handle has no display", h.Platform)
	}
	return nil
}
