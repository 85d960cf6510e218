package binaries

import (
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/platform"
)

type systemLibs struct {
	dylibs     []string
	frameworks []string
}

func (s *systemLibs) lib(names ...string)       { s.dylibs = append(s.dylibs, names...) }
func (s *systemLibs) framework(names ...string) { s.frameworks = append(s.frameworks, names...) }

// systemLibraries lists what the platform has to provide at link time.
func systemLibraries(target platform.Target, caps config.CapabilitySet) systemLibs {
	var s systemLibs

	switch target.OS {
	case platform.Linux:
		s.lib("fontconfig")
		if caps.Has("gl") {
			s.lib("GL")
		}
		if caps.Has("egl") {
			s.lib("EGL")
		}
		if caps.Has("x11") {
			s.lib("X11")
		}
		if caps.Has("use-system-libraries") {
			s.lib("freetype", "png16", "z", "jpeg", "webp", "expat")
			if caps.Has("textlayout") {
				s.lib("harfbuzz", "icuuc")
			}
		}
		s.lib("stdc++")

	case platform.Android:
		s.lib("log", "android")
		if caps.Has("gl") {
			s.lib("EGL", "GLESv2")
		}
		if caps.Has("use-system-libraries") {
			s.lib("z", "png16", "jpeg")
		}
		s.lib("c++_static", "c++abi")

	case platform.MacOS:
		s.framework("ApplicationServices", "CoreFoundation", "CoreGraphics", "CoreText", "Foundation")
		if caps.Has("gl") {
			s.framework("OpenGL")
		}
		if caps.Has("metal") {
			s.framework("Metal", "MetalKit")
		}
		s.lib("c++")

	case platform.IOS:
		s.framework("CoreFoundation", "CoreGraphics", "CoreText", "ImageIO", "MobileCoreServices", "UIKit")
		if caps.Has("gl") {
			s.framework("OpenGLES")
		}
		if caps.Has("metal") {
			s.framework("Metal")
		}
		s.lib("c++")

	case platform.Windows:
		s.lib("usp10", "ole32", "user32", "gdi32", "fontsub")
		if caps.Has("gl") {
			s.lib("opengl32")
		}
		if caps.Has("d3d") {
			s.lib("d3d12", "dxgi", "d3dcompiler")
		}
		if !target.IsMSVC() {
			s.lib("stdc++")
		}
	}

	return s
}
