// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"fmt"
	"runtime/debug"
)

const root = "github.com/LynnColeArt/gudabench"

// Version returns the version of gudabench and its checksum, as recorded in
// the build info of the running binary. When gudabench is the main module,
// as for cmd/gemmbench, the main module version is returned, usually
// "(devel)" with an empty sum. Both are empty in binaries built without
// module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return moduleVersion(b)
}

func moduleVersion(b *debug.BuildInfo) (version, sum string) {
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace == nil {
			return m.Version, m.Sum
		}
		switch r := m.Replace; {
		case r.Version != "" && r.Path != "":
			return fmt.Sprintf("%s=>%s %s", m.Version, r.Path, r.Version), r.Sum
		case r.Version != "":
			return fmt.Sprintf("%s=>%s", m.Version, r.Version), r.Sum
		case r.Path != "":
			return fmt.Sprintf("%s=>%s", m.Version, r.Path), r.Sum
		default:
			return m.Version + "*", m.Sum + "*"
		}
	}
	return "", ""
}
