package demux

import (
	"mp4demux/pkg/mp4"
)

// codecName maps a sample-entry tag to the codec identifier handed to a
// decoder. The hev1/hvc1 family is rewritten to the canonical name
// "hevc"; all other tags pass through as their FourCC.
func codecName(entry *mp4.SampleEntry) string {
	switch entry.Type {
	case mp4.TypeHev1, mp4.TypeHvc1:
		return "hevc"
	}
	return entry.Type.String()
}
