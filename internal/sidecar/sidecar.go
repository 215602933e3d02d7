// Package sidecar reads and writes ravel's per-artifact `.rvl` manifests:
// YAML files recording an output's content digest and, optionally, the
// command and dependency hashes that produced it. It follows the teacher's
// pkg/encoding wrapper style around gopkg.in/yaml.v3, and writes atomically
// via internal/atomicfile.
package sidecar

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ravel-dvc/ravel/internal/atomicfile"
	"github.com/ravel-dvc/ravel/internal/rverr"
)

// Extension is the sidecar file suffix ravel appends to a tracked output's
// path.
const Extension = ".rvl"

// dirSuffix is the wire-format suffix distinguishing a directory digest from
// a file digest in the `md5` field.
const dirSuffix = ".dir"

// Computation is the optional provenance block describing how an output was
// produced.
type Computation struct {
	Cmd     string
	CodeRef string
	Deps    map[string]string
}

// Info is the in-memory form of a parsed sidecar. Digest and Size are nil
// for a placeholder sidecar (computation declared, output not yet
// materialized).
type Info struct {
	// OutputBaseName is the path field recorded in the sidecar: the
	// basename of the tracked output, relative to the sidecar itself.
	OutputBaseName string
	Digest         *string
	Size           *int64
	IsDir          bool
	NFiles         *int
	Computation    *Computation
	// Extra holds any top-level sidecar fields this reader doesn't
	// recognize, so a read-then-write round trip (e.g. track.Add
	// refreshing a sidecar's deps) doesn't silently drop them, per
	// spec.md §3's "unknown fields are preserved on read where feasible".
	Extra map[string]interface{}
	// OutExtra holds the same passthrough for unrecognized fields nested
	// under outs[0].
	OutExtra map[string]interface{}
}

// wireOut mirrors the outs[0] YAML shape. Extra is an inline catch-all for
// any field not named above.
type wireOut struct {
	Path   string                 `yaml:"path"`
	MD5    string                 `yaml:"md5,omitempty"`
	Size   *int64                 `yaml:"size,omitempty"`
	Hash   string                 `yaml:"hash,omitempty"`
	NFiles *int                   `yaml:"nfiles,omitempty"`
	Extra  map[string]interface{} `yaml:",inline"`
}

// wireComputation mirrors meta.computation.
type wireComputation struct {
	Cmd     string            `yaml:"cmd,omitempty"`
	CodeRef string            `yaml:"code_ref,omitempty"`
	Deps    map[string]string `yaml:"deps,omitempty"`
}

// wireMeta mirrors meta, including the legacy top-level cmd/deps variant.
type wireMeta struct {
	Computation *wireComputation  `yaml:"computation,omitempty"`
	Cmd         string            `yaml:"cmd,omitempty"`
	Deps        map[string]string `yaml:"deps,omitempty"`
}

// wireFile is the root sidecar document. Computation can also appear as a
// top-level sibling of outs/meta in legacy files. Extra is an inline
// catch-all capturing any other top-level field verbatim.
type wireFile struct {
	Outs        []wireOut              `yaml:"outs"`
	Meta        *wireMeta              `yaml:"meta,omitempty"`
	Computation *wireComputation       `yaml:"computation,omitempty"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// PathFor returns the sidecar path for a given tracked output path.
func PathFor(outputPath string) string {
	return outputPath + Extension
}

// Read parses the sidecar at sidecarPath. A missing file is reported as
// *rverr.NotFound, which callers such as the freshness engine distinguish
// themselves; syntactic failures and an empty outs list are reported as
// *rverr.InvalidSidecar.
func Read(sidecarPath string) (*Info, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &rverr.NotFound{Path: sidecarPath}
		}
		return nil, err
	}

	var wire wireFile
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, &rverr.InvalidSidecar{Path: sidecarPath, Detail: err.Error()}
	}
	if len(wire.Outs) == 0 {
		return nil, &rverr.InvalidSidecar{Path: sidecarPath, Detail: "outs list is empty"}
	}

	out := wire.Outs[0]
	info := &Info{
		OutputBaseName: out.Path,
		NFiles:         out.NFiles,
		Extra:          wire.Extra,
		OutExtra:       out.Extra,
	}

	if out.MD5 != "" {
		digest, isDir := splitDigest(out.MD5)
		info.Digest = &digest
		info.IsDir = isDir
	}
	info.Size = out.Size

	info.Computation = resolveComputation(wire)

	return info, nil
}

// resolveComputation applies the legacy-variant priority rule: prefer
// meta.computation, fall back to a top-level computation block, fall back
// to the legacy meta.{cmd,deps} layout.
func resolveComputation(wire wireFile) *Computation {
	if wire.Meta != nil && wire.Meta.Computation != nil {
		return computationFromWire(wire.Meta.Computation)
	}
	if wire.Computation != nil {
		return computationFromWire(wire.Computation)
	}
	if wire.Meta != nil && (wire.Meta.Cmd != "" || len(wire.Meta.Deps) > 0) {
		return &Computation{Cmd: wire.Meta.Cmd, Deps: wire.Meta.Deps}
	}
	return nil
}

func computationFromWire(w *wireComputation) *Computation {
	return &Computation{Cmd: w.Cmd, CodeRef: w.CodeRef, Deps: w.Deps}
}

// splitDigest separates the wire-format ".dir" suffix from a raw digest.
func splitDigest(md5 string) (digest string, isDir bool) {
	if strings.HasSuffix(md5, dirSuffix) {
		return strings.TrimSuffix(md5, dirSuffix), true
	}
	return md5, false
}

// WriteParams carries everything needed to serialize a sidecar. It mirrors
// spec.md's write_sidecar signature: Digest/Size/NFiles are nil in
// placeholder mode.
type WriteParams struct {
	OutputPath string
	Digest     *string
	Size       *int64
	IsDir      bool
	NFiles     *int
	Cmd        string
	CodeRef    string
	Deps       map[string]string
	// Extra and OutExtra carry forward unknown fields read from a prior
	// version of this sidecar (Info.Extra/Info.OutExtra), so rewriting a
	// sidecar doesn't drop fields this package doesn't understand.
	Extra    map[string]interface{}
	OutExtra map[string]interface{}
}

// Write serializes params to <OutputPath>.rvl, atomically. The path field in
// the sidecar is the basename of OutputPath so the file is self-contained
// when moved alongside its output.
func Write(params WriteParams) error {
	out := wireOut{
		Path:   filepath.Base(params.OutputPath),
		Hash:   "md5",
		Size:   params.Size,
		NFiles: params.NFiles,
		Extra:  params.OutExtra,
	}
	if params.Digest != nil {
		out.MD5 = *params.Digest
		if params.IsDir {
			out.MD5 += dirSuffix
		}
	}

	wire := wireFile{Outs: []wireOut{out}, Extra: params.Extra}

	if params.Cmd != "" || params.CodeRef != "" || len(params.Deps) > 0 {
		wire.Meta = &wireMeta{
			Computation: &wireComputation{
				Cmd:     params.Cmd,
				CodeRef: params.CodeRef,
				Deps:    params.Deps,
			},
		}
	}

	data, err := yaml.Marshal(&wire)
	if err != nil {
		return err
	}

	return atomicfile.Write(PathFor(params.OutputPath), data, 0644)
}
