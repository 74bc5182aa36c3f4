package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets keep of every n calls through. every == 0 lets all through.
type sampler struct {
	keep, every uint64
	seen        atomic.Uint64
}

func (s *sampler) allow() bool {
	if s.every == 0 {
		return true
	}
	return (s.seen.Add(1)-1)%s.every < s.keep
}

var debugSample atomic.Pointer[sampler]

func init() {
	setDebugSample(1, 50)
}

func setDebugSample(keep, every uint64) {
	if keep >= every {
		every = 0
	}
	debugSample.Store(&sampler{keep: keep, every: every})
}

// SampleDebug reports whether the next high volume debug line is kept.
func SampleDebug() bool {
	return debugSample.Load().allow()
}

// parseSample reads "keep/every", "every" (one in every) or "0" (keep all).
func parseSample(spec string) (keep, every uint64, ok bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0, false
	}
	num, den, split := strings.Cut(spec, "/")
	if !split {
		n, err := strconv.ParseUint(spec, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		if n == 0 {
			return 1, 0, true
		}
		return 1, n, true
	}
	k, err1 := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
	e, err2 := strconv.ParseUint(strings.TrimSpace(den), 10, 64)
	if err1 != nil || err2 != nil || k == 0 || e == 0 {
		return 0, 0, false
	}
	return k, e, true
}
