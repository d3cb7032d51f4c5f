// Package bootcfg parses and serializes the bootloader configuration file
//: a flat UTF-8 key=value text file read by stage-2 from
// /bootloader/qconfig.cfg. The parser is a hand-rolled line scanner in the
// style of the config readers in the rest of this corpus (no reflection,
// no third-party config library) — freestanding stage-2 code cannot link
// one anyway.
package bootcfg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Config mirrors the fields the design define for qconfig.cfg.
type Config struct {
	Stage2   string
	Stage3   string
	Kernel   string
	Initfs   string
	VideoW   uint32
	VideoH   uint32
	KernelMB uint32
}

// Parse reads a qconfig.cfg-formatted stream. Unknown keys are ignored, as
// required by the design. A line with no '=' is ignored rather than
// treated as an error, matching the permissive "unknown keys are ignored"
// rule for malformed lines too.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case "stage2":
			cfg.Stage2 = value
		case "stage3":
			cfg.Stage3 = value
		case "kernel":
			cfg.Kernel = value
		case "initfs":
			cfg.Initfs = value
		case "video":
			w, h, err := parseVideo(value)
			if err != nil {
				return nil, fmt.Errorf("bootcfg: video=%q: %w", value, err)
			}
			cfg.VideoW, cfg.VideoH = w, h
		case "kernel_mb":
			mb, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bootcfg: kernel_mb=%q: %w", value, err)
			}
			cfg.KernelMB = uint32(mb)
		default:
			// unknown keys are ignored
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseVideo(value string) (w, h uint32, err error) {
	wStr, hStr, ok := strings.Cut(value, "x")
	if !ok {
		wStr, hStr, ok = strings.Cut(value, "X")
	}
	if !ok {
		return 0, 0, fmt.Errorf("expected WxH")
	}

	wv, err := strconv.ParseUint(strings.TrimSpace(wStr), 10, 32)
	if err != nil {
		return 0, 0, err
	}
	hv, err := strconv.ParseUint(strings.TrimSpace(hStr), 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(wv), uint32(hv), nil
}

// WriteTo serializes cfg back to qconfig.cfg text form.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "stage2=%s\n", c.Stage2)
	fmt.Fprintf(&b, "stage3=%s\n", c.Stage3)
	fmt.Fprintf(&b, "kernel=%s\n", c.Kernel)
	fmt.Fprintf(&b, "initfs=%s\n", c.Initfs)
	fmt.Fprintf(&b, "video=%dx%d\n", c.VideoW, c.VideoH)
	fmt.Fprintf(&b, "kernel_mb=%d\n", c.KernelMB)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
